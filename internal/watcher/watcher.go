package watcher

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce        = 100 * time.Millisecond
	defaultMaxWatches      = 4096
	defaultCleanupInterval = time.Minute
	maxRestartAttempts     = 3
	restartBaseDelay       = 200 * time.Millisecond
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrClosed             = errors.New("watcher is closed")
)

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions starts a Watcher. Zero option fields take defaults.
func NewWithOptions(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	options = options.withDefaults()

	watcher := &Watcher{
		watcher:         source,
		roots:           make(map[uint64]*rootEntry),
		dirs:            make(map[string]int),
		debouncer:       newDebouncer(options.Clock, options.Debounce),
		done:            make(chan struct{}),
		logger:          options.Logger.Category("watcher"),
		skip:            options.Skip,
		maxWatches:      options.MaxWatches,
		cleanupInterval: options.CleanupInterval,
		errorHandler:    options.ErrorHandler,
		onResync:        options.OnResync,
		clock:           options.Clock,
	}
	watcher.pump(source)
	go watcher.cleanupLoop()
	return watcher, nil
}

// pump feeds one fsnotify instance into the watcher until it is closed. A
// restart starts a pump for the replacement and closes the old instance.
func (watcher *Watcher) pump(source *fsnotify.Watcher) {
	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				watcher.handleEvent(event)
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				watcher.handleError(err)
			case <-watcher.done:
				return
			}
		}
	}()
}

// Close stops event delivery and releases every watch. Pending debounced
// events are discarded.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	watcher.debouncer.stop()
	watcher.debouncer = nil
	source := watcher.watcher
	watcher.watcher = nil
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func (watcher *Watcher) isClosed() bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return watcher.closed
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	watcher.logger.Warn(message, fields)
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	watcher.logger.Debug(message, map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	})
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := len(watcher.dirs)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	attempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsDropped:   atomic.LoadUint64(&watcher.eventsDropped),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: attempts,
		Resyncs:         atomic.LoadUint64(&watcher.resyncs),
	}
}
