package crm

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// The REST transport has no server-side transaction. Transaction keeps a
// journal of created entities in ctx and deletes them in reverse order when
// fn fails. Updates are not journaled.

type journalKey struct{}

type undo struct {
	entity string
	id     int64
	fn     func(ctx context.Context) error
}

type journal struct {
	undos []undo
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

// track records how to undo a create made under ctx's transaction, if any.
func (c *Client) track(ctx context.Context, entity string, id int64, fn func(ctx context.Context) error) {
	if j := journalFrom(ctx); j != nil {
		j.undos = append(j.undos, undo{entity: entity, id: id, fn: fn})
	}
}

// Transaction implements API.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}
	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j))
	if err == nil {
		return nil
	}

	// Undo outside the failed ctx so a cancelled request still compensates.
	undoCtx := context.WithoutCancel(ctx)
	var undoErr error
	for i := len(j.undos) - 1; i >= 0; i-- {
		u := j.undos[i]
		if e := u.fn(undoCtx); e != nil {
			undoErr = multierr.Append(undoErr, fmt.Errorf("undo %s %d: %w", u.entity, u.id, e))
		}
	}
	if undoErr != nil {
		c.log.Error("crm transaction rollback incomplete",
			zap.Int("journaled", len(j.undos)),
			zap.NamedError("cause", err),
			zap.Error(undoErr))
	} else if len(j.undos) > 0 {
		c.log.Info("crm transaction rolled back", zap.Int("undone", len(j.undos)), zap.NamedError("cause", err))
	}
	return err
}
