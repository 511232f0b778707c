// Package hooks holds the extension points other components use to observe
// or veto sync decisions:
//
//	loaded                  fired once the engine has registered its listeners
//	group/should_be_synced  veto: any false stops sync for that group
//	new_username            filters a generated username before uniqueness checks
//	remove_filters          fired before this service writes to the CRM
//	add_filters             fired after the write
//
// A nil *Registry behaves as an empty one.
package hooks

import (
	"context"
	"sync"

	"github.com/dalemusser/groupsync/internal/app/crm"
)

// ShouldSyncFunc returns false to stop sync for groupID.
type ShouldSyncFunc func(ctx context.Context, groupID int64) bool

// UsernameFunc rewrites a candidate username for contact c.
type UsernameFunc func(ctx context.Context, username string, c crm.Contact) string

// Registry stores registered hook functions.
type Registry struct {
	mu         sync.RWMutex
	loaded     []func(ctx context.Context)
	shouldSync []ShouldSyncFunc
	usernames  []UsernameFunc
	remove     []func(ctx context.Context)
	add        []func(ctx context.Context)
}

// New returns an empty registry.
func New() *Registry { return &Registry{} }

// OnLoaded registers fn for the loaded hook.
func (r *Registry) OnLoaded(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, fn)
}

// FireLoaded runs the loaded hook.
func (r *Registry) FireLoaded(ctx context.Context) {
	if r == nil {
		return
	}
	for _, fn := range snapshot(r, func() []func(context.Context) { return r.loaded }) {
		fn(ctx)
	}
}

// AddShouldSync registers a veto.
func (r *Registry) AddShouldSync(fn ShouldSyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldSync = append(r.shouldSync, fn)
}

// ShouldSync reports whether groupID may be synced. Every veto is asked;
// groups are synced by default.
func (r *Registry) ShouldSync(ctx context.Context, groupID int64) bool {
	if r == nil {
		return true
	}
	for _, fn := range snapshot(r, func() []ShouldSyncFunc { return r.shouldSync }) {
		if !fn(ctx, groupID) {
			return false
		}
	}
	return true
}

// AddUsernameFilter registers a new_username filter.
func (r *Registry) AddUsernameFilter(fn UsernameFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usernames = append(r.usernames, fn)
}

// FilterUsername passes username through every filter in registration order.
func (r *Registry) FilterUsername(ctx context.Context, username string, c crm.Contact) string {
	if r == nil {
		return username
	}
	for _, fn := range snapshot(r, func() []UsernameFunc { return r.usernames }) {
		username = fn(ctx, username, c)
	}
	return username
}

// OnRemoveFilters registers fn for the remove_filters hook.
func (r *Registry) OnRemoveFilters(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove = append(r.remove, fn)
}

// OnAddFilters registers fn for the add_filters hook.
func (r *Registry) OnAddFilters(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add = append(r.add, fn)
}

// RemoveFilters fires remove_filters.
func (r *Registry) RemoveFilters(ctx context.Context) {
	if r == nil {
		return
	}
	for _, fn := range snapshot(r, func() []func(context.Context) { return r.remove }) {
		fn(ctx)
	}
}

// AddFilters fires add_filters.
func (r *Registry) AddFilters(ctx context.Context) {
	if r == nil {
		return
	}
	for _, fn := range snapshot(r, func() []func(context.Context) { return r.add }) {
		fn(ctx)
	}
}

// snapshot copies a hook list under the read lock so hooks may register
// further hooks while running.
func snapshot[T any](r *Registry, get func() []T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]T(nil), get()...)
}
