// Package watcher delivers debounced filesystem events for whole directory
// trees.
//
// The Watcher API is safe for concurrent use and delivers best-effort events:
// callers should assume events can be coalesced or dropped under load and
// treat each delivery as "this path changed, look again" rather than rely on
// exact ordering.
package watcher
