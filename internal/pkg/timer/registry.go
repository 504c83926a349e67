// Package timer provides an owned registry of deferred callbacks keyed by
// session and question, with bulk cancellation per session.
package timer

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Key identifies a scheduled callback. Question 0 is used for pacing continuations.
type Key struct {
	SessionID string
	Question  int
}

// String returns the "<session>:<question>" form used in logs.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.SessionID, k.Question)
}

type handle struct {
	t        *time.Timer
	gen      uint64
	deadline time.Time
}

// Registry holds at most one live callback per key.
// The zero value is not usable; create with NewRegistry.
type Registry struct {
	mu      sync.Mutex
	handles map[Key]*handle
	gen     uint64
	stopped bool
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[Key]*handle),
		now:     time.Now,
	}
}

// Schedule arms fn to run after d, replacing any handle already registered for key.
// fn runs on its own goroutine and is never invoked while the registry lock is held.
func (r *Registry) Schedule(key Key, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if h, ok := r.handles[key]; ok {
		h.t.Stop()
		delete(r.handles, key)
	}

	r.gen++
	gen := r.gen
	h := &handle{gen: gen, deadline: r.now().Add(d)}
	h.t = time.AfterFunc(d, func() {
		r.mu.Lock()
		cur, ok := r.handles[key]
		if !ok || cur.gen != gen {
			// Replaced or cancelled after the timer had already fired.
			r.mu.Unlock()
			return
		}
		delete(r.handles, key)
		r.mu.Unlock()

		fn()
	})
	r.handles[key] = h
}

// Cancel stops and removes the handle for key. Returns false if none was registered.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok {
		return false
	}
	h.t.Stop()
	delete(r.handles, key)
	return true
}

// CancelPrefix stops every handle belonging to sessionID and returns how many were removed.
func (r *Registry) CancelPrefix(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, h := range r.handles {
		if k.SessionID != sessionID {
			continue
		}
		h.t.Stop()
		delete(r.handles, k)
		n++
	}
	return n
}

// Has reports whether a handle is registered for key.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[key]
	return ok
}

// Deadline returns when the handle for key is due to fire.
func (r *Registry) Deadline(key Key) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[key]
	if !ok {
		return time.Time{}, false
	}
	return h.deadline, true
}

// Keys returns a snapshot of registered keys, ordered by session then question.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SessionID != keys[j].SessionID {
			return keys[i].SessionID < keys[j].SessionID
		}
		return keys[i].Question < keys[j].Question
	})
	return keys
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop cancels every handle and rejects further scheduling.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, h := range r.handles {
		h.t.Stop()
		delete(r.handles, k)
	}
	r.stopped = true
}
