// internal/app/system/workers/reconciler.go
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/groupsync/internal/app/groupsync/reconcile"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Stepper runs one reconciliation chunk.
type Stepper interface {
	ReconcileStep(ctx context.Context) (reconcile.Result, error)
}

// Reconciler is a background worker that advances the reconciliation driver
// one chunk per tick. Only one chunk runs at a time.
type Reconciler struct {
	stepper  Stepper
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewReconciler creates a reconcile worker.
//
// Parameters:
//   - stepper: usually the sync engine
//   - logger: zap logger for logging
//   - interval: how often to run a chunk (e.g., 30 seconds)
func NewReconciler(stepper Stepper, logger *zap.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		stepper:  stepper,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Reconciler) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reconcile worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for the running chunk.
func (w *Reconciler) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("reconcile worker stopped")
}

func (w *Reconciler) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce runs a single chunk, waiting for any chunk already running.
func (w *Reconciler) RunOnce(parent context.Context) (reconcile.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := timeouts.WithTimeout(parent, timeouts.Batch(), w.log, "reconcile worker")
	defer cancel()

	res, err := w.stepper.ReconcileStep(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.log.Error("reconcile chunk failed", zap.String("step", res.Step), zap.Error(err))
		}
		return res, err
	}
	if res.Page.Changed > 0 || res.Finished {
		w.log.Info("reconcile chunk done",
			zap.String("run_id", res.RunID),
			zap.String("step", res.Step),
			zap.Int("processed", res.Page.Processed),
			zap.Int("changed", res.Page.Changed),
			zap.Bool("finished", res.Finished))
	}
	return res, nil
}
