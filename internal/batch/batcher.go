package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"projsync/internal/descriptor"
	"projsync/internal/logging"
	"projsync/internal/metrics"
	"projsync/internal/prompt"
)

const DefaultWindow = 2 * time.Second

var ErrClosed = errors.New("batcher closed")

type State int

const (
	StateIdle State = iota
	StateCollecting
)

func (s State) String() string {
	if s == StateCollecting {
		return "collecting"
	}
	return "idle"
}

type Resolver interface {
	Resolve(ctx context.Context, filePath string) (*descriptor.Descriptor, error)
}

// Remover drops entries from a descriptor and persists it with one write.
type Remover interface {
	Remove(ctx context.Context, d *descriptor.Descriptor, filePaths ...string) (int, error)
}

type Options struct {
	Resolver Resolver
	Remover  Remover
	Cache    *descriptor.Cache
	Prompter prompt.Prompter
	Clock    clock.Clock
	// Window is the quiet period after the last deletion before a flush.
	Window time.Duration
	// Silent removes entries without asking.
	Silent bool
	// Context is used for flushes started by the timer.
	Context context.Context
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

type removal struct {
	descriptor *descriptor.Descriptor
	path       string
}

func (r removal) key() string {
	return r.descriptor.Path() + "\x00" + r.path
}

// Batcher coalesces deletion notifications that arrive within one quiet
// window into a single confirmation and one write per descriptor.
type Batcher struct {
	resolver Resolver
	remover  Remover
	cache    *descriptor.Cache
	prompter prompt.Prompter
	clock    clock.Clock
	window   time.Duration
	silent   bool
	ctx      context.Context
	logger   *logging.Logger
	metrics  *metrics.Registry

	mu         sync.Mutex
	state      State
	deadline   time.Time
	pending    []removal
	seen       map[string]struct{}
	timer      *clock.Timer
	generation uint64
	closed     bool

	flushMu sync.Mutex
}

func New(options Options) *Batcher {
	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}
	window := options.Window
	if window <= 0 {
		window = DefaultWindow
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Batcher{
		resolver: options.Resolver,
		remover:  options.Remover,
		cache:    options.Cache,
		prompter: options.Prompter,
		clock:    clk,
		window:   window,
		silent:   options.Silent,
		ctx:      ctx,
		logger:   logger.Category("batch"),
		metrics:  options.Metrics,
		seen:     make(map[string]struct{}),
	}
}

// Notify queues filePath for removal when a descriptor lists it. It reports
// whether the file was queued; files with no governing descriptor or no
// entry are ignored.
func (b *Batcher) Notify(ctx context.Context, filePath string) (bool, error) {
	if b.isClosed() {
		return false, ErrClosed
	}
	d, err := b.resolver.Resolve(ctx, filePath)
	if err != nil {
		if errors.Is(err, descriptor.ErrNoDescriptor) {
			return false, nil
		}
		return false, err
	}
	if !descriptor.HasEntry(d, filePath) {
		return false, nil
	}

	item := removal{descriptor: d, path: filePath}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}
	if _, ok := b.seen[item.key()]; !ok {
		b.seen[item.key()] = struct{}{}
		b.pending = append(b.pending, item)
		b.metrics.IncDeletion()
	}
	b.armLocked()
	b.logger.Debug("deletion queued", map[string]string{
		"path":       filePath,
		"descriptor": d.Path(),
		"pending":    strconv.Itoa(len(b.pending)),
	})
	return true, nil
}

// armLocked enters Collecting and restarts the quiet-window timer.
func (b *Batcher) armLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.generation++
	generation := b.generation
	b.state = StateCollecting
	b.deadline = b.clock.Now().Add(b.window)
	b.timer = b.clock.AfterFunc(b.window, func() {
		b.expire(generation)
	})
}

func (b *Batcher) expire(generation uint64) {
	b.mu.Lock()
	if generation != b.generation || b.state != StateCollecting {
		b.mu.Unlock()
		return
	}
	items := b.takeLocked()
	b.mu.Unlock()

	if err := b.flush(b.ctx, items); err != nil {
		b.logger.Warn("deletion batch failed", map[string]string{"error": err.Error()})
	}
}

// takeLocked returns to Idle and hands over the pending removals.
func (b *Batcher) takeLocked() []removal {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.generation++
	b.state = StateIdle
	b.deadline = time.Time{}
	items := b.pending
	b.pending = nil
	b.seen = make(map[string]struct{})
	return items
}

// Flush processes the pending batch immediately.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	items := b.takeLocked()
	b.mu.Unlock()
	return b.flush(ctx, items)
}

// Close flushes what is pending and rejects later notifications.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	items := b.takeLocked()
	b.mu.Unlock()
	return b.flush(ctx, items)
}

func (b *Batcher) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Deadline is when the collecting batch flushes. It is zero while idle.
func (b *Batcher) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadline
}

func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Batcher) flush(ctx context.Context, items []removal) (err error) {
	if len(items) == 0 {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	ctx, span := startFlushSpan(ctx, len(items))
	defer func() { endSpan(span, err) }()

	items = b.current(ctx, items)
	if len(items) == 0 {
		return nil
	}

	if !b.silent {
		confirmed, err := b.confirm(ctx, items)
		if err != nil {
			b.logger.Info("deletion batch dismissed", map[string]string{"error": err.Error()})
		}
		if !confirmed {
			b.metrics.IncBatch(true)
			b.logger.Info("deletion batch declined", map[string]string{"files": strconv.Itoa(len(items))})
			return nil
		}
	}

	// The confirmation may have been open for a while.
	items = b.current(ctx, items)

	guard := b.cache.Suppress()
	defer guard.Release()

	var failures []error
	removed := 0
	for _, group := range groupByDescriptor(items) {
		count, err := b.removeGroup(ctx, group)
		if err != nil {
			failures = append(failures, fmt.Errorf("remove from %s: %w", group.descriptor.Name(), err))
			continue
		}
		removed += count
	}
	b.metrics.IncBatch(false)
	b.logger.Info("deletion batch applied", map[string]string{
		"files":   strconv.Itoa(len(items)),
		"removed": strconv.Itoa(removed),
	})

	if len(failures) > 0 {
		err = errors.Join(failures...)
		if b.prompter != nil {
			b.prompter.Error(err.Error())
		}
		return err
	}
	return nil
}

func (b *Batcher) confirm(ctx context.Context, items []removal) (bool, error) {
	if b.prompter == nil {
		return false, nil
	}
	choice, err := b.prompter.Choose(ctx, confirmationMessage(items), prompt.ChoiceYes, prompt.ChoiceNotNow)
	if err != nil {
		return false, err
	}
	return choice == prompt.ChoiceYes, nil
}

func confirmationMessage(items []removal) string {
	if len(items) == 1 {
		item := items[0]
		return fmt.Sprintf("%s was deleted. Remove it from %s?",
			displayPath(item), item.descriptor.Name())
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "%d files were deleted. Remove them from their projects?", len(items))
	for _, item := range items {
		fmt.Fprintf(&builder, "\n  %s (%s)", displayPath(item), item.descriptor.Name())
	}
	return builder.String()
}

func displayPath(item removal) string {
	if rel, err := item.descriptor.RelativePath(item.path); err == nil {
		return strings.ReplaceAll(rel, `\`, "/")
	}
	return item.path
}

// current re-resolves every queued path so removals go through the live
// handle of whatever descriptor governs the path now. Paths that are no
// longer listed, or whose descriptor is gone, are dropped, so a flush never
// recreates a deleted descriptor.
func (b *Batcher) current(ctx context.Context, items []removal) []removal {
	kept := items[:0:0]
	for _, item := range items {
		d, err := b.resolver.Resolve(ctx, item.path)
		if err != nil {
			if !errors.Is(err, descriptor.ErrNoDescriptor) {
				b.logger.Warn("deletion dropped", map[string]string{
					"path":  item.path,
					"error": err.Error(),
				})
			}
			continue
		}
		if descriptor.HasEntry(d, item.path) {
			kept = append(kept, removal{descriptor: d, path: item.path})
		}
	}
	return kept
}

// removeGroup removes one descriptor's paths. A handle found stale is
// discarded and the paths are resolved and removed once more.
func (b *Batcher) removeGroup(ctx context.Context, group descriptorGroup) (int, error) {
	count, err := b.remover.Remove(ctx, group.descriptor, group.paths...)
	if !errors.Is(err, descriptor.ErrStale) {
		return count, err
	}
	b.cache.Discard(group.descriptor)
	b.logger.Debug("descriptor changed on disk; reloading", map[string]string{
		"descriptor": group.descriptor.Path(),
	})
	retry := make([]removal, 0, len(group.paths))
	for _, path := range group.paths {
		retry = append(retry, removal{descriptor: group.descriptor, path: path})
	}
	removed := 0
	for _, regrouped := range groupByDescriptor(b.current(ctx, retry)) {
		count, err := b.remover.Remove(ctx, regrouped.descriptor, regrouped.paths...)
		if err != nil {
			return removed, err
		}
		removed += count
	}
	return removed, nil
}

type descriptorGroup struct {
	descriptor *descriptor.Descriptor
	paths      []string
}

func groupByDescriptor(items []removal) []descriptorGroup {
	index := make(map[*descriptor.Descriptor]int)
	var groups []descriptorGroup
	for _, item := range items {
		position, ok := index[item.descriptor]
		if !ok {
			position = len(groups)
			index[item.descriptor] = position
			groups = append(groups, descriptorGroup{descriptor: item.descriptor})
		}
		groups[position].paths = append(groups[position].paths, item.path)
	}
	return groups
}
