package watcher

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"projsync/internal/logging"
)

// Event is one debounced change. Op is resolved against the filesystem at
// delivery time: Create for a new file, Write for a changed one, Remove
// for a path that no longer exists.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Handle releases watcher resources for a registration.
type Handle interface {
	Close() error
}

// Watch registers a callback for every file event beneath root.
type Watch interface {
	Watch(root string, callback func(Event)) (Handle, error)
}

// Options controls watcher behavior.
type Options struct {
	Logger   *logging.Logger
	Debounce time.Duration
	// MaxWatches caps the number of watched directories.
	MaxWatches      int
	CleanupInterval time.Duration
	// Skip excludes a path from watching and delivery. Skipped directories
	// are not descended into.
	Skip func(path string) bool
	// ErrorHandler receives the error that exhausted the restart attempts.
	ErrorHandler func(error)
	// OnResync is called for each root after a restart, when events may
	// have been lost.
	OnResync func(root string)
	// Clock drives every timer in the watcher.
	Clock clock.Clock
}

func (options Options) withDefaults() Options {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.Debounce <= 0 {
		options.Debounce = defaultDebounce
	}
	if options.MaxWatches <= 0 {
		options.MaxWatches = defaultMaxWatches
	}
	if options.CleanupInterval <= 0 {
		options.CleanupInterval = defaultCleanupInterval
	}
	if options.Skip == nil {
		options.Skip = func(string) bool { return false }
	}
	if options.Clock == nil {
		options.Clock = clock.New()
	}
	return options
}

// Metrics is a point-in-time view of watcher activity.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsDropped   uint64
	Errors          uint64
	RestartAttempts int
	Resyncs         uint64
}

type rootEntry struct {
	path     string
	callback func(Event)
	dirs     map[string]struct{}
}

// Watcher is the fsnotify-backed implementation.
type Watcher struct {
	watcher         *fsnotify.Watcher
	mutex           sync.Mutex
	roots           map[uint64]*rootEntry
	dirs            map[string]int
	debouncer       *debouncer
	done            chan struct{}
	closed          bool
	logger          *logging.Logger
	skip            func(string) bool
	maxWatches      int
	cleanupInterval time.Duration
	errorHandler    func(error)
	onResync        func(string)
	clock           clock.Clock
	nextID          uint64

	restartMutex    sync.Mutex
	restartTimer    *clock.Timer
	restartAttempts int

	eventsDelivered uint64
	eventsDropped   uint64
	errorCount      uint64
	resyncs         uint64
}
