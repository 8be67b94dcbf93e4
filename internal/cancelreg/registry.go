// Package cancelreg implements C5 of spec.md: a concurrent
// request_id → cancel-flag registry shared between the HTTP surface and
// the relay engine's progress callback.
package cancelreg

import "sync"

// Flag is a handle shared between Registry.Trip and the relay engine's
// progress callback. Tripped() is safe to poll from any goroutine.
type Flag struct {
	mu      sync.Mutex
	tripped bool
}

func (f *Flag) trip() {
	f.mu.Lock()
	f.tripped = true
	f.mu.Unlock()
}

// Tripped reports whether Trip has been called on this flag.
func (f *Flag) Tripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped
}

// Registry is the concurrent map of spec.md §4.5. Duplicate ids overwrite
// and orphan the prior flag — spec.md states uniqueness is the caller's
// responsibility.
type Registry struct {
	mu    sync.Mutex
	flags map[int64]*Flag
}

func New() *Registry {
	return &Registry{flags: make(map[int64]*Flag)}
}

// Register inserts a fresh flag for id and returns it. The relay engine's
// progress callback should poll the returned Flag.
func (r *Registry) Register(id int64) *Flag {
	f := &Flag{}
	r.mu.Lock()
	r.flags[id] = f
	r.mu.Unlock()
	return f
}

// Trip sets the flag for id, if one is registered. Returns whether one was
// present — spec.md §4.5: idempotent, and cancel of an unknown id is a
// caller-visible "not found".
func (r *Registry) Trip(id int64) bool {
	r.mu.Lock()
	f, ok := r.flags[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	f.trip()
	return true
}

// Remove deletes the entry for id — called by the HTTP surface's /request
// handler once the relay engine's Execute returns, i.e. once the request
// reaches a terminal state (spec.md §4.5).
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.flags, id)
	r.mu.Unlock()
}
