package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

type Registry struct {
	parses               atomic.Int64
	parseFailures        atomic.Int64
	cacheHits            atomic.Int64
	cacheMisses          atomic.Int64
	invalidations        atomic.Int64
	suppressed           atomic.Int64
	writes               atomic.Int64
	writeFailures        atomic.Int64
	entriesAdded         atomic.Int64
	entriesRemoved       atomic.Int64
	batchesFlushed       atomic.Int64
	batchesDeclined      atomic.Int64
	deletionNotification atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Parses         int64
	ParseFailures  int64
	CacheHits      int64
	CacheMisses    int64
	Invalidations  int64
	Suppressed     int64
	Writes         int64
	WriteFailures  int64
	EntriesAdded   int64
	EntriesRemoved int64
	Batches        int64
	Declined       int64
	Deletions      int64
}

var Default = &Registry{}

func (r *Registry) IncParse(failed bool) {
	if r == nil {
		return
	}
	r.parses.Add(1)
	if failed {
		r.parseFailures.Add(1)
	}
}

func (r *Registry) IncCacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Add(1)
}

func (r *Registry) IncCacheMiss() {
	if r == nil {
		return
	}
	r.cacheMisses.Add(1)
}

func (r *Registry) IncInvalidation(suppressed bool) {
	if r == nil {
		return
	}
	if suppressed {
		r.suppressed.Add(1)
		return
	}
	r.invalidations.Add(1)
}

func (r *Registry) IncWrite(failed bool) {
	if r == nil {
		return
	}
	r.writes.Add(1)
	if failed {
		r.writeFailures.Add(1)
	}
}

func (r *Registry) AddEntries(added, removed int) {
	if r == nil {
		return
	}
	r.entriesAdded.Add(int64(added))
	r.entriesRemoved.Add(int64(removed))
}

func (r *Registry) IncDeletion() {
	if r == nil {
		return
	}
	r.deletionNotification.Add(1)
}

func (r *Registry) IncBatch(declined bool) {
	if r == nil {
		return
	}
	if declined {
		r.batchesDeclined.Add(1)
		return
	}
	r.batchesFlushed.Add(1)
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Parses:         r.parses.Load(),
		ParseFailures:  r.parseFailures.Load(),
		CacheHits:      r.cacheHits.Load(),
		CacheMisses:    r.cacheMisses.Load(),
		Invalidations:  r.invalidations.Load(),
		Suppressed:     r.suppressed.Load(),
		Writes:         r.writes.Load(),
		WriteFailures:  r.writeFailures.Load(),
		EntriesAdded:   r.entriesAdded.Load(),
		EntriesRemoved: r.entriesRemoved.Load(),
		Batches:        r.batchesFlushed.Load(),
		Declined:       r.batchesDeclined.Load(),
		Deletions:      r.deletionNotification.Load(),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}
	s := r.Snapshot()
	writeCounter(writer, "projsync_descriptor_parses_total", "Descriptor parses", s.Parses)
	writeCounter(writer, "projsync_descriptor_parse_failures_total", "Descriptor parse failures", s.ParseFailures)
	writeCounter(writer, "projsync_cache_hits_total", "Descriptor cache hits", s.CacheHits)
	writeCounter(writer, "projsync_cache_misses_total", "Descriptor cache misses", s.CacheMisses)
	writeCounter(writer, "projsync_cache_invalidations_total", "Descriptor cache evictions", s.Invalidations)
	writeCounter(writer, "projsync_cache_invalidations_suppressed_total", "Invalidations ignored while suppressed", s.Suppressed)
	writeCounter(writer, "projsync_descriptor_writes_total", "Descriptor writes", s.Writes)
	writeCounter(writer, "projsync_descriptor_write_failures_total", "Descriptor write failures", s.WriteFailures)
	writeCounter(writer, "projsync_entries_added_total", "Item entries added", s.EntriesAdded)
	writeCounter(writer, "projsync_entries_removed_total", "Item entries removed", s.EntriesRemoved)
	writeCounter(writer, "projsync_deletions_queued_total", "Deletion notifications queued", s.Deletions)
	writeCounter(writer, "projsync_batches_flushed_total", "Deletion batches applied", s.Batches)
	writeCounter(writer, "projsync_batches_declined_total", "Deletion batches declined", s.Declined)
	return nil
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}
