package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step names in run order.
const (
	StepPopulateA2B = "populate_a2b"
	StepPruneA2B    = "prune_a2b"
	StepPopulateB2A = "populate_b2a"
	StepPruneB2A    = "prune_b2a"
)

// Steps lists the passes in the order the driver runs them.
var Steps = []string{StepPopulateA2B, StepPruneA2B, StepPopulateB2A, StepPruneB2A}

// DefaultChunk is the page size used when the driver is built with 0.
const DefaultChunk = 100

// StateStore persists the driver position between invocations.
type StateStore interface {
	Load(ctx context.Context) (models.ReconcileState, bool, error)
	Save(ctx context.Context, st models.ReconcileState) error
	Clear(ctx context.Context) error
}

// Settings reads the sync settings document.
type Settings interface {
	Get(ctx context.Context) (models.SyncSettings, error)
}

// Result describes one driver step.
type Result struct {
	RunID    string `json:"run_id,omitempty"`
	Step     string `json:"step,omitempty"`
	Offset   int    `json:"offset"`
	Page     Page   `json:"page"`
	Finished bool   `json:"finished"`
	Idle     bool   `json:"idle,omitempty"`
}

// Driver walks the passes chunk by chunk, persisting its position. Steps and
// resets are serialized, so the background worker and an operator can share
// one Driver.
type Driver struct {
	engine   *Engine
	state    StateStore
	settings Settings
	chunk    int
	log      *zap.Logger
	now      func() time.Time

	mu sync.Mutex // held for a whole Step or Reset
}

// NewDriver builds a Driver.
func NewDriver(e *Engine, state StateStore, settings Settings, chunk int, logger *zap.Logger) *Driver {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{engine: e, state: state, settings: settings, chunk: chunk, log: logger, now: time.Now}
}

func (d *Driver) pass(step int) func(context.Context, int, int) (Page, error) {
	switch step {
	case 0:
		return d.engine.PopulateA2B
	case 1:
		return d.engine.PruneA2B
	case 2:
		return d.engine.PopulateB2A
	default:
		return d.engine.PruneB2A
	}
}

// State returns the persisted position, if a run is in progress.
func (d *Driver) State(ctx context.Context) (models.ReconcileState, bool, error) {
	return d.state.Load(ctx)
}

// Reset discards the persisted position so the next Step starts a new run.
func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clear(ctx)
}

// Step runs one chunk of the current pass. When the pass is exhausted the
// driver moves to the next one; after the last pass the run is finished and
// its state cleared.
func (d *Driver) Step(ctx context.Context) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, err := d.settings.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	if !set.SyncEnabled {
		return Result{Idle: true}, nil
	}

	st, ok, err := d.state.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok || st.Step < 0 || st.Step >= len(Steps) {
		st = models.ReconcileState{RunID: uuid.NewString(), StartedAt: d.now()}
		d.log.Info("reconcile run started", zap.String("run_id", st.RunID))
	}

	name := Steps[st.Step]
	res := Result{RunID: st.RunID, Step: name, Offset: st.Offset}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), d.log, "reconcile "+name)
	page, err := d.pass(st.Step)(cctx, d.chunk, st.Offset)
	cancel()
	if err != nil {
		d.log.Error("reconcile chunk failed",
			zap.String("run_id", st.RunID),
			zap.String("step", name),
			zap.Int("offset", st.Offset),
			zap.Error(err))
		return res, err
	}
	res.Page = page
	metrics.ReconcileLastStep.WithLabelValues(name).SetToCurrentTime()

	if page.Done {
		d.log.Info("reconcile pass done", zap.String("run_id", st.RunID), zap.String("step", name))
		st.Step++
		st.Offset = 0
		if st.Step >= len(Steps) {
			d.log.Info("reconcile run finished", zap.String("run_id", st.RunID))
			res.Finished = true
			return res, d.state.Clear(ctx)
		}
	} else {
		st.Offset = page.Next
	}
	st.UpdatedAt = d.now()
	return res, d.state.Save(ctx, st)
}

// RunAll steps until the current run finishes, ctx ends or maxSteps chunks
// have run (0 means no cap).
func (d *Driver) RunAll(ctx context.Context, maxSteps int) (Result, error) {
	var last Result
	for n := 0; maxSteps == 0 || n < maxSteps; n++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		res, err := d.Step(ctx)
		if err != nil {
			return res, err
		}
		last = res
		if res.Finished || res.Idle {
			break
		}
	}
	return last, nil
}
