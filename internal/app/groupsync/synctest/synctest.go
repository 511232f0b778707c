// Package synctest wires a complete sync engine over the in-memory social
// platform and CRM for tests.
package synctest

import (
	"context"
	"sync"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/crm/crmtest"
	"github.com/dalemusser/groupsync/internal/app/groupsync/engine"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctag"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/social/socialtest"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Settings is an in-memory settings document.
type Settings struct {
	mu sync.Mutex
	s  models.SyncSettings
}

// NewSettings returns Settings holding the defaults.
func NewSettings() *Settings {
	return &Settings{s: models.DefaultSyncSettings()}
}

// Get implements engine.Settings.
func (m *Settings) Get(context.Context) (models.SyncSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

// Save implements engine.Settings.
func (m *Settings) Save(_ context.Context, s models.SyncSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

// State is an in-memory reconcile state store.
type State struct {
	mu sync.Mutex
	st *models.ReconcileState
}

// Load implements reconcile.StateStore.
func (m *State) Load(context.Context) (models.ReconcileState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return models.ReconcileState{}, false, nil
	}
	return *m.st, true, nil
}

// Save implements reconcile.StateStore.
func (m *State) Save(_ context.Context, st models.ReconcileState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = &st
	return nil
}

// Clear implements reconcile.StateStore.
func (m *State) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = nil
	return nil
}

// Env is a started engine with both subsystems in memory.
type Env struct {
	Ctx       context.Context
	SocialBus *events.Bus
	CRMBus    *events.Bus
	Social    *social.Service
	Memory    *socialtest.Memory
	CRM       *crmtest.Fake
	Settings  *Settings
	State     *State
	Engine    *engine.Engine
}

// Option adjusts the Config before the engine is built.
type Option func(*engine.Config)

// WithChunk sets the reconciliation page size.
func WithChunk(n int) Option { return func(c *engine.Config) { c.Chunk = n } }

// WithLegacyCreator sets the owner of imported legacy groups.
func WithLegacyCreator(id int64) Option { return func(c *engine.Config) { c.LegacyCreatorID = id } }

// New returns a started Env. The engine is stopped when the test ends.
func New(t testing.TB, opts ...Option) *Env {
	t.Helper()
	socialBus := events.NewBus("social", zap.NewNop())
	crmBus := events.NewBus("crm", zap.NewNop())
	svc, mem := socialtest.NewService(socialBus)

	env := &Env{
		Ctx:       context.Background(),
		SocialBus: socialBus,
		CRMBus:    crmBus,
		Social:    svc,
		Memory:    mem,
		CRM:       crmtest.New(crmBus),
		Settings:  NewSettings(),
		State:     &State{},
	}
	cfg := engine.Config{
		CRM:          env.CRM,
		CRMBus:       crmBus,
		Social:       svc,
		Settings:     env.Settings,
		State:        env.State,
		Logger:       zap.NewNop(),
		PasswordCost: bcrypt.MinCost,
	}
	for _, o := range opts {
		o(&cfg)
	}
	env.Engine = engine.New(cfg)
	env.Engine.Start(env.Ctx)
	t.Cleanup(env.Engine.Stop)
	return env
}

// User creates a social user.
func (e *Env) User(t testing.TB, username, email string) models.User {
	t.Helper()
	u, err := e.Social.CreateUser(e.Ctx, models.User{Username: username, DisplayName: username, Email: email})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

// Group creates a social group owned by creatorID.
func (e *Env) Group(t testing.TB, name string, creatorID, parentID int64) models.Group {
	t.Helper()
	g, err := e.Social.CreateGroup(e.Ctx, social.NewGroup{Name: name, Description: name + " group", CreatorID: creatorID, ParentID: parentID})
	if err != nil {
		t.Fatalf("CreateGroup(%s): %v", name, err)
	}
	return g
}

// Records returns the Member and ACL records of groupID.
func (e *Env) Records(t testing.TB, groupID int64) (member, acl crm.Group) {
	t.Helper()
	r := e.Engine.Resolver
	var err error
	if member, err = r.FindByTag(e.Ctx, synctag.Member(groupID)); err != nil {
		t.Fatalf("member record of %d: %v", groupID, err)
	}
	if acl, err = r.FindByTag(e.Ctx, synctag.ACL(groupID)); err != nil {
		t.Fatalf("acl record of %d: %v", groupID, err)
	}
	return member, acl
}

// Correspondence resolves groupID or fails the test.
func (e *Env) Correspondence(t testing.TB, groupID int64) resolver.Correspondence {
	t.Helper()
	c, err := e.Engine.Resolver.Resolve(e.Ctx, groupID)
	if err != nil {
		t.Fatalf("Resolve(%d): %v", groupID, err)
	}
	return c
}

// Contact returns the CRM contact linked to userID, or 0.
func (e *Env) Contact(t testing.TB, userID int64) int64 {
	t.Helper()
	links, err := e.CRM.UFMatches(e.Ctx, crm.UFMatchFilter{UFID: userID})
	if err != nil {
		t.Fatalf("UFMatches(%d): %v", userID, err)
	}
	if len(links) == 0 {
		return 0
	}
	return links[0].ContactID
}

// Row returns the CRM status of userID's contact in crmGroupID.
func (e *Env) Row(t testing.TB, crmGroupID, userID int64) (crm.Status, bool) {
	t.Helper()
	cid := e.Contact(t, userID)
	if cid == 0 {
		return "", false
	}
	return e.CRM.Status(crmGroupID, cid)
}

// Member returns userID's membership in groupID and whether it exists.
func (e *Env) Member(t testing.TB, groupID, userID int64) (models.GroupMembership, bool) {
	t.Helper()
	m, err := e.Social.Membership(e.Ctx, groupID, userID)
	if err != nil {
		return models.GroupMembership{}, false
	}
	return m, true
}
