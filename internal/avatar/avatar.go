// Package avatar builds avatar URLs that stay cacheable until the avatar
// actually changes. Each user id maps to the time its avatar was last
// invalidated; that timestamp is appended as a query parameter so every
// page showing the avatar re-fetches it after a change.
package avatar

import (
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Registry maps user ids to their last invalidation time in milliseconds
// since the Unix epoch. Entries are never removed; the map is bounded by
// the number of distinct users seen.
type Registry struct {
	clock clockwork.Clock

	mu sync.RWMutex
	ts map[int64]int64
}

// NewRegistry returns an empty registry reading time from clock. A nil
// clock means the wall clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{clock: clock, ts: make(map[int64]int64)}
}

// Timestamp returns the last invalidation time for id.
func (r *Registry) Timestamp(id int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.ts[id]
	return ts, ok
}

// Len returns the number of known ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ts)
}

func (r *Registry) now() int64 { return r.clock.Now().UnixMilli() }

// Touch marks id's avatar as changed now. A zero id is ignored.
func (r *Registry) Touch(id int64) int64 {
	if id == 0 {
		return 0
	}
	now := r.now()
	r.mu.Lock()
	r.ts[id] = now
	r.mu.Unlock()
	return now
}

// TouchMany marks every non-zero id as changed at the same instant.
func (r *Registry) TouchMany(ids ...int64) {
	now := r.now()
	r.mu.Lock()
	for _, id := range ids {
		if id != 0 {
			r.ts[id] = now
		}
	}
	r.mu.Unlock()
}

// UserRef is anything that carries a user id.
type UserRef interface {
	UserID() int64
}

// TouchUsers marks the avatars of users as changed. Nil users and users
// without an id are skipped.
func (r *Registry) TouchUsers(users []UserRef) {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		if u != nil {
			ids = append(ids, u.UserID())
		}
	}
	r.TouchMany(ids...)
}

// RefreshAll moves every known id to now, forcing all avatars to reload.
func (r *Registry) RefreshAll() {
	now := r.now()
	r.mu.Lock()
	for id := range r.ts {
		r.ts[id] = now
	}
	r.mu.Unlock()
}

// BaseURLSource supplies the API root avatar paths are relative to.
type BaseURLSource interface {
	BaseURL() string
}

// Builder turns stored avatar paths into display URLs.
type Builder struct {
	base BaseURLSource
	reg  *Registry
}

// NewBuilder returns a Builder resolving paths against base.
func NewBuilder(base BaseURLSource, reg *Registry) *Builder {
	return &Builder{base: base, reg: reg}
}

// Registry returns the timestamp registry.
func (b *Builder) Registry() *Registry { return b.reg }

// URL returns the display URL for a stored avatar path. An empty path
// yields "" and the caller shows a placeholder. Absolute URLs are returned
// unchanged.
func (b *Builder) URL(path string, userID int64) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http") {
		return path
	}
	u := b.base.BaseURL() + path
	if ts, ok := b.reg.Timestamp(userID); ok {
		u += "?t=" + strconv.FormatInt(ts, 10)
	}
	return u
}
