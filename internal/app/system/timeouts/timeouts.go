// Package timeouts holds the context deadlines used across the service.
//
//   - Ping: health checks
//   - Short: single lookups (one Mongo document, one CRM get)
//   - Sync: one lifecycle or membership sync call (several CRM round trips)
//   - Batch: one reconciliation chunk
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used until Configure is called.
const (
	DefaultPing  = 2 * time.Second
	DefaultShort = 5 * time.Second
	DefaultSync  = 30 * time.Second
	DefaultBatch = 2 * time.Minute
)

var (
	mu    sync.RWMutex
	ping  = DefaultPing
	short = DefaultShort
	syncD = DefaultSync
	batch = DefaultBatch
)

// Ping returns the health check timeout.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the single-lookup timeout.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Sync returns the timeout for one sync call.
func Sync() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return syncD
}

// Batch returns the timeout for one reconciliation chunk.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config overrides timeouts. Zero values keep the current value.
type Config struct {
	Ping  time.Duration
	Short time.Duration
	Sync  time.Duration
	Batch time.Duration
}

// Configure applies non-zero values from cfg. Call during startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Sync > 0 {
		syncD = cfg.Sync
	}
	if cfg.Batch > 0 {
		batch = cfg.Batch
	}
}

// WithTimeout is context.WithTimeout whose cancel func logs a warning when
// the deadline was hit.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), log, "reconcile chunk")
//	defer cancel()
func WithTimeout(parent context.Context, d time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", d))
		}
		cancel()
	}
}
