package logging

import "sync"

const DefaultHistorySize = 256

// History retains the latest entries and counts every entry per level, so a
// long watch session can still report how many problems it hit.
type History struct {
	mu      sync.Mutex
	ring    []Entry
	next    int
	wrapped bool
	counts  map[Level]int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		ring:   make([]Entry, capacity),
		counts: make(map[Level]int),
	}
}

func (h *History) record(entry Entry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[entry.Level]++
	h.ring[h.next] = entry
	h.next++
	if h.next == len(h.ring) {
		h.next = 0
		h.wrapped = true
	}
}

// Entries returns the retained entries, oldest first.
func (h *History) Entries() []Entry {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entriesLocked()
}

func (h *History) entriesLocked() []Entry {
	if !h.wrapped {
		return append([]Entry(nil), h.ring[:h.next]...)
	}
	out := make([]Entry, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	return append(out, h.ring[:h.next]...)
}

// Count reports how many entries at level were recorded, including those
// the ring no longer holds.
func (h *History) Count(level Level) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[level]
}

// Problems returns the retained warnings and errors, oldest first.
func (h *History) Problems() []Entry {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var problems []Entry
	for _, entry := range h.entriesLocked() {
		if levelRank(entry.Level) >= levelRank(LevelWarning) {
			problems = append(problems, entry)
		}
	}
	return problems
}
