package pipeline

import (
	"log/slog"
	"sync"
)

// Resources is a per-request scoped-resource list. Each acquisition
// registers a release action; ReleaseAll runs them in reverse
// acquisition order, exactly once, logging release failures instead of
// propagating them so cleanup can never mask the original error.
type Resources struct {
	mu       sync.Mutex
	entries  []resourceEntry
	released bool
}

type resourceEntry struct {
	name    string
	release func() error
}

// NewResources creates an empty tracker.
func NewResources() *Resources {
	return &Resources{}
}

// Add registers a release action under a diagnostic name. Adding after
// ReleaseAll runs the action immediately.
func (r *Resources) Add(name string, release func() error) {
	if release == nil {
		return
	}
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		runRelease(name, release)
		return
	}
	r.entries = append(r.entries, resourceEntry{name: name, release: release})
	r.mu.Unlock()
}

// ReleaseAll releases every registered resource in reverse order.
// Idempotent; subsequent calls are no-ops.
func (r *Resources) ReleaseAll() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		runRelease(entries[i].name, entries[i].release)
	}
}

// runRelease shields callers from both errors and panics in release
// actions.
func runRelease(name string, release func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("resource release panicked", "resource", name, "panic", rec)
		}
	}()
	if err := release(); err != nil {
		slog.Warn("resource release failed", "resource", name, "error", err)
	}
}
