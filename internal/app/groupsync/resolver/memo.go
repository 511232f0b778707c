package resolver

import (
	"context"
	"sync"
)

// memo caches resolutions for the lifetime of one ctx (one request or one
// reconciliation chunk). It is never shared across requests.
type memo struct {
	mu       sync.Mutex
	corr     map[int64]Correspondence
	contacts map[int64]int64 // user id -> contact id
	users    map[int64]int64 // contact id -> user id
}

type memoKey struct{}

// WithMemo returns a ctx carrying a fresh resolution memo.
func WithMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoKey{}, &memo{
		corr:     map[int64]Correspondence{},
		contacts: map[int64]int64{},
		users:    map[int64]int64{},
	})
}

func memoFrom(ctx context.Context) *memo {
	m, _ := ctx.Value(memoKey{}).(*memo)
	return m
}

func (m *memo) correspondence(groupID int64) (Correspondence, bool) {
	if m == nil {
		return Correspondence{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corr[groupID]
	return c, ok
}

func (m *memo) putCorrespondence(c Correspondence) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.corr[c.GroupID] = c
	m.mu.Unlock()
}

func (m *memo) dropCorrespondence(groupID int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.corr, groupID)
	m.mu.Unlock()
}

func (m *memo) link(userID, contactID int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.contacts[userID] = contactID
	m.users[contactID] = userID
	m.mu.Unlock()
}

func (m *memo) contactOf(userID int64) (int64, bool) {
	if m == nil {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.contacts[userID]
	return id, ok
}

func (m *memo) userOf(contactID int64) (int64, bool) {
	if m == nil {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.users[contactID]
	return id, ok
}
