// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package correlation

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Entry is a response which has not been written yet.
type Entry[H any] struct {
	ID     ID
	Handle H

	// Deadline is the instant after which the entry is considered stale.
	// The zero value never expires.
	Deadline time.Time
}

// Expired reports whether the entry's deadline has passed at now.
func (e *Entry[H]) Expired(now time.Time) bool {
	return !e.Deadline.IsZero() && !now.Before(e.Deadline)
}

// Registry maps correlation identifiers to outstanding response handles.
// It is the only place which decides whether a response is still writable,
// so Put, TakeAndRemove and Sweep are safe for concurrent use and a handle
// is only ever handed out once.
type Registry[H any] struct {
	entries *xsync.MapOf[ID, *Entry[H]]
}

// NewRegistry returns an empty Registry.
func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{
		entries: xsync.NewMapOf[ID, *Entry[H]](),
	}
}

// Put stores handle under id. A colliding id overwrites the previous entry;
// the displaced handle is returned so callers can answer it.
func (r *Registry[H]) Put(id ID, handle H, deadline time.Time) (displaced H, ok bool) {
	e := &Entry[H]{
		ID:       id,
		Handle:   handle,
		Deadline: deadline,
	}
	prev, loaded := r.entries.LoadAndStore(id, e)
	if !loaded {
		return displaced, false
	}
	return prev.Handle, true
}

// TakeAndRemove atomically removes and returns the handle stored under id.
// Any later call for the same id reports false.
func (r *Registry[H]) TakeAndRemove(id ID) (handle H, ok bool) {
	e, loaded := r.entries.LoadAndDelete(id)
	if !loaded {
		return handle, false
	}
	return e.Handle, true
}

// TakeAndRemoveFunc is like TakeAndRemove but only removes the entry when
// match reports true for its handle. It lets an owner withdraw its own
// handle without disturbing an entry which has since replaced it.
func (r *Registry[H]) TakeAndRemoveFunc(id ID, match func(H) bool) (handle H, ok bool) {
	r.entries.Compute(id, func(cur *Entry[H], loaded bool) (*Entry[H], bool) {
		if !loaded {
			return cur, true
		}
		if !match(cur.Handle) {
			return cur, false
		}
		handle, ok = cur.Handle, true
		return cur, true
	})
	return handle, ok
}

// Sweep removes and returns every entry which has expired at now.
func (r *Registry[H]) Sweep(now time.Time) []Entry[H] {
	var expired []Entry[H]
	r.entries.Range(func(id ID, e *Entry[H]) bool {
		if !e.Expired(now) {
			return true
		}

		// The entry may have been taken or replaced since Range observed it.
		r.entries.Compute(id, func(cur *Entry[H], loaded bool) (*Entry[H], bool) {
			if !loaded {
				return cur, true
			}
			if cur != e || !cur.Expired(now) {
				return cur, false
			}
			expired = append(expired, *cur)
			return cur, true
		})
		return true
	})
	return expired
}

// Len returns the number of pending entries.
func (r *Registry[H]) Len() int {
	return r.entries.Size()
}
