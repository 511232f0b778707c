// Package engine assembles the sync components and attaches them to the
// social and CRM buses.
package engine

import (
	"context"
	"errors"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/aclmirror"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hierarchy"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/lifecycle"
	"github.com/dalemusser/groupsync/internal/app/groupsync/membersync"
	"github.com/dalemusser/groupsync/internal/app/groupsync/reconcile"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
)

// Settings reads and writes the sync settings document.
type Settings interface {
	Get(ctx context.Context) (models.SyncSettings, error)
	Save(ctx context.Context, s models.SyncSettings) error
}

// Config holds the collaborators of an Engine.
type Config struct {
	CRM      crm.API
	CRMBus   *events.Bus
	Social   *social.Service
	Settings Settings
	State    reconcile.StateStore
	Hooks    *hooks.Registry
	Logger   *zap.Logger

	// Chunk is the reconciliation page size; 0 uses reconcile.DefaultChunk.
	Chunk int
	// LegacyCreatorID owns groups imported from legacy CRM records.
	LegacyCreatorID int64
	// PasswordCost overrides the bcrypt cost of generated user passwords.
	PasswordCost int
}

// Engine is the running sync service.
type Engine struct {
	Hooks     *hooks.Registry
	Resolver  *resolver.Resolver
	Persons   *resolver.Persons
	ACL       *aclmirror.Mirror
	Hierarchy *hierarchy.Mirror
	Members   *membersync.Syncer
	Lifecycle *lifecycle.Sync
	Reconcile *reconcile.Engine
	Driver    *reconcile.Driver

	social   *social.Service
	crmBus   *events.Bus
	settings Settings
	log      *zap.Logger
	started  bool
}

// New builds every component. Nothing listens until Start.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := cfg.Hooks
	if reg == nil {
		reg = hooks.New()
	}

	res := resolver.New(cfg.CRM, cfg.Social, log.Named("resolver"))
	persons := resolver.NewPersons(cfg.CRM, cfg.Social, reg, cfg.CRMBus, log.Named("persons"))
	if cfg.PasswordCost > 0 {
		persons.PasswordCost = cfg.PasswordCost
	}
	acl := aclmirror.New(cfg.CRM, log.Named("aclmirror"))
	hier := hierarchy.New(cfg.CRM, res, cfg.Social, cfg.Settings, reg, log.Named("hierarchy"))
	members := membersync.New(cfg.CRM, res, persons, reg, cfg.Social, log.Named("membersync"))
	lc := lifecycle.New(lifecycle.Deps{
		CRM:             cfg.CRM,
		Resolver:        res,
		ACL:             acl,
		Hierarchy:       hier,
		Members:         members,
		Social:          cfg.Social,
		Settings:        cfg.Settings,
		Hooks:           reg,
		Logger:          log.Named("lifecycle"),
		LegacyCreatorID: cfg.LegacyCreatorID,
	})
	rec := reconcile.NewEngine(cfg.CRM, res, members, lc, cfg.Social, reg, log.Named("reconcile"))

	e := &Engine{
		Hooks:     reg,
		Resolver:  res,
		Persons:   persons,
		ACL:       acl,
		Hierarchy: hier,
		Members:   members,
		Lifecycle: lc,
		Reconcile: rec,
		social:    cfg.Social,
		crmBus:    cfg.CRMBus,
		settings:  cfg.Settings,
		log:       log,
	}
	reg.AddShouldSync(e.enabled)
	if cfg.State != nil {
		e.Driver = reconcile.NewDriver(rec, cfg.State, cfg.Settings, cfg.Chunk, log.Named("driver"))
	}
	return e
}

// Start registers the listeners on both buses and fires the loaded hook.
// It is a no-op when already started.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true
	e.Lifecycle.Register(e.social.Bus(), e.crmBus)
	e.Members.Register(e.social.Bus(), e.crmBus)
	e.Hooks.FireLoaded(ctx)
	e.log.Info("group sync started")
}

// Stop removes every listener and any pending deferred email links.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	e.started = false
	e.Lifecycle.Unregister()
	e.Members.Unregister()
	e.Persons.Close()
	e.log.Info("group sync stopped")
}

// enabled vetoes every group while sync is switched off.
func (e *Engine) enabled(ctx context.Context, _ int64) bool {
	s, err := e.settings.Get(ctx)
	if err != nil {
		e.log.Warn("sync settings unavailable; skipping", zap.Error(err))
		return false
	}
	return s.SyncEnabled
}

// SetUseContainer stores the use_container setting and rebuilds the top of
// the CRM hierarchy to match.
func (e *Engine) SetUseContainer(ctx context.Context, enabled bool, by string) error {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return err
	}
	prev := s.UseContainer
	s.UseContainer = enabled
	s.UpdatedBy = by
	if err := e.settings.Save(ctx, s); err != nil {
		return err
	}
	if prev == enabled {
		return nil
	}
	return e.Hierarchy.ApplyContainerSetting(ctx, enabled)
}

// SetEnabled switches synchronization on or off.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool, by string) error {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return err
	}
	s.SyncEnabled = enabled
	s.UpdatedBy = by
	return e.settings.Save(ctx, s)
}

// ErrNoDriver is returned by ReconcileStep when the engine was built without
// a state store.
var ErrNoDriver = errors.New("reconcile driver not configured")

// ReconcileStep runs one chunk of the reconciliation driver.
func (e *Engine) ReconcileStep(ctx context.Context) (reconcile.Result, error) {
	if e.Driver == nil {
		return reconcile.Result{}, ErrNoDriver
	}
	return e.Driver.Step(ctx)
}
