// Package socialtest provides in-memory social stores for tests that do not
// need Mongo.
package socialtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/groupsync/internal/app/social"
	userstore "github.com/dalemusser/groupsync/internal/app/store/users"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/normalize"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Memory implements every social store interface over maps.
type Memory struct {
	mu      sync.Mutex
	groups  map[int64]models.Group
	members map[[2]int64]models.GroupMembership
	meta    map[int64]map[string]string
	users   map[int64]models.User
	nextGID int64
	nextUID int64
}

// NewMemory returns empty stores.
func NewMemory() *Memory {
	return &Memory{
		groups:  make(map[int64]models.Group),
		members: make(map[[2]int64]models.GroupMembership),
		meta:    make(map[int64]map[string]string),
		users:   make(map[int64]models.User),
	}
}

// Stores returns the social.Stores view of m.
func (m *Memory) Stores() social.Stores {
	return social.Stores{
		Groups:      groupStore{m},
		Memberships: membershipStore{m},
		Meta:        metaStore{m},
		Users:       userStore{m},
	}
}

// NewService builds a social.Service over fresh in-memory stores.
func NewService(bus *events.Bus) (*social.Service, *Memory) {
	if bus == nil {
		bus = events.NewBus("social", zap.NewNop())
	}
	mem := NewMemory()
	return social.New(mem.Stores(), bus, zap.NewNop()), mem
}

/* -------------------------------- groups -------------------------------- */

type groupStore struct{ m *Memory }

func (s groupStore) Create(_ context.Context, g models.Group) (models.Group, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if g.ID == 0 {
		s.m.nextGID++
		g.ID = s.m.nextGID
	} else if g.ID > s.m.nextGID {
		s.m.nextGID = g.ID
	}
	if _, ok := s.m.groups[g.ID]; ok {
		return models.Group{}, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	}
	g.NameCI = text.Fold(g.Name)
	if g.Status == "" {
		g.Status = models.GroupActive
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	s.m.groups[g.ID] = g
	return g, nil
}

func (s groupStore) GetByID(_ context.Context, id int64) (models.Group, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	g, ok := s.m.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

func (s groupStore) mutate(id int64, fn func(*models.Group)) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	g, ok := s.m.groups[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	fn(&g)
	g.UpdatedAt = time.Now().UTC()
	s.m.groups[id] = g
	return nil
}

func (s groupStore) UpdateInfo(_ context.Context, id int64, name, desc string) error {
	return s.mutate(id, func(g *models.Group) {
		if name != "" {
			g.Name = name
			g.NameCI = text.Fold(name)
		}
		g.Description = desc
	})
}

func (s groupStore) SetParent(_ context.Context, id, parentID int64) error {
	return s.mutate(id, func(g *models.Group) { g.ParentID = parentID })
}

func (s groupStore) SetStatus(_ context.Context, id int64, status string) error {
	return s.mutate(id, func(g *models.Group) { g.Status = status })
}

func (s groupStore) Delete(_ context.Context, id int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.groups[id]; !ok {
		return 0, nil
	}
	delete(s.m.groups, id)
	return 1, nil
}

func (s groupStore) sorted(keep func(models.Group) bool) []models.Group {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Group
	for _, g := range s.m.groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s groupStore) List(_ context.Context, limit, offset int) ([]models.Group, error) {
	return page(s.sorted(func(models.Group) bool { return true }), limit, offset), nil
}

func (s groupStore) Children(_ context.Context, parentID int64) ([]models.Group, error) {
	return s.sorted(func(g models.Group) bool { return g.ParentID == parentID }), nil
}

func (s groupStore) Count(_ context.Context) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return int64(len(s.m.groups)), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

/* ------------------------------ memberships ----------------------------- */

type membershipStore struct{ m *Memory }

func (s membershipStore) Get(_ context.Context, groupID, userID int64) (models.GroupMembership, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	mb, ok := s.m.members[[2]int64{groupID, userID}]
	if !ok {
		return models.GroupMembership{}, mongo.ErrNoDocuments
	}
	return mb, nil
}

func (s membershipStore) Save(_ context.Context, mb models.GroupMembership) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := [2]int64{mb.GroupID, mb.UserID}
	now := time.Now().UTC()
	if old, ok := s.m.members[k]; ok {
		mb.CreatedAt = old.CreatedAt
	} else {
		mb.CreatedAt = now
	}
	mb.UpdatedAt = now
	s.m.members[k] = mb
	return nil
}

func (s membershipStore) Delete(_ context.Context, groupID, userID int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := [2]int64{groupID, userID}
	if _, ok := s.m.members[k]; !ok {
		return 0, nil
	}
	delete(s.m.members, k)
	return 1, nil
}

func (s membershipStore) DeleteByGroup(_ context.Context, groupID int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for k := range s.m.members {
		if k[0] == groupID {
			delete(s.m.members, k)
			n++
		}
	}
	return n, nil
}

func (s membershipStore) sorted(keep func(models.GroupMembership) bool) []models.GroupMembership {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.GroupMembership
	for _, mb := range s.m.members {
		if keep(mb) {
			out = append(out, mb)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (s membershipStore) ListByGroup(_ context.Context, groupID int64) ([]models.GroupMembership, error) {
	return s.sorted(func(mb models.GroupMembership) bool { return mb.GroupID == groupID }), nil
}

func (s membershipStore) CountByGroup(_ context.Context, groupID int64) (int64, error) {
	return int64(len(s.sorted(func(mb models.GroupMembership) bool {
		return mb.GroupID == groupID && !mb.IsBanned
	}))), nil
}

func (s membershipStore) ListPage(_ context.Context, limit, offset int) ([]models.GroupMembership, error) {
	return page(s.sorted(func(mb models.GroupMembership) bool { return !mb.IsBanned }), limit, offset), nil
}

/* --------------------------------- meta --------------------------------- */

type metaStore struct{ m *Memory }

func (s metaStore) Get(_ context.Context, groupID int64, key string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.meta[groupID][key]
	if !ok {
		return "", mongo.ErrNoDocuments
	}
	return v, nil
}

func (s metaStore) Set(_ context.Context, groupID int64, key, value string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.meta[groupID] == nil {
		s.m.meta[groupID] = make(map[string]string)
	}
	s.m.meta[groupID][key] = value
	return nil
}

func (s metaStore) Delete(_ context.Context, groupID int64, key string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.meta[groupID], key)
	return nil
}

func (s metaStore) DeleteGroup(_ context.Context, groupID int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.meta, groupID)
	return nil
}

/* --------------------------------- users -------------------------------- */

type userStore struct{ m *Memory }

func (s userStore) Create(_ context.Context, u models.User) (models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u.DisplayName = normalize.Name(u.DisplayName)
	u.DisplayCI = text.Fold(u.DisplayName)
	u.Email = normalize.Email(u.Email)
	for _, other := range s.m.users {
		if other.Username == u.Username {
			return models.User{}, userstore.ErrDuplicateUsername
		}
		if u.Email != "" && other.Email == u.Email {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	if u.Status == "" {
		u.Status = "active"
	}
	s.m.nextUID++
	u.ID = s.m.nextUID
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.m.users[u.ID] = u
	return u, nil
}

func (s userStore) find(match func(models.User) bool) (models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, mongo.ErrNoDocuments
}

func (s userStore) GetByID(_ context.Context, id int64) (models.User, error) {
	return s.find(func(u models.User) bool { return u.ID == id })
}

func (s userStore) GetByEmail(_ context.Context, email string) (models.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return models.User{}, mongo.ErrNoDocuments
	}
	return s.find(func(u models.User) bool { return u.Email == email })
}

func (s userStore) GetByUsername(_ context.Context, username string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Username == username })
}

func (s userStore) SetEmail(_ context.Context, id int64, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	email = normalize.Email(email)
	for _, other := range s.m.users {
		if email != "" && other.ID != id && other.Email == email {
			return userstore.ErrDuplicateEmail
		}
	}
	u.Email = email
	u.UpdatedAt = time.Now().UTC()
	s.m.users[id] = u
	return nil
}

/* -------------------------------- helpers ------------------------------- */

// Recorder collects every event published on a bus, for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Record subscribes r to topics on bus.
func Record(bus *events.Bus, topics ...events.Topic) *Recorder {
	r := &Recorder{}
	for _, t := range topics {
		bus.Subscribe(t, "recorder", 1000, func(_ context.Context, ev events.Event) error {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Topics returns the topic of every recorded event.
func (r *Recorder) Topics() []events.Topic {
	evs := r.Events()
	out := make([]events.Topic, len(evs))
	for i, ev := range evs {
		out[i] = ev.Topic()
	}
	return out
}
