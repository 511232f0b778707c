// internal/domain/models/reconcilestate.go
package models

import "time"

// ReconcileState is the persisted position of the reconciliation driver
// between invocations.
type ReconcileState struct {
	Step      int       `bson:"step" json:"step"`
	Offset    int       `bson:"offset" json:"offset"`
	RunID     string    `bson:"run_id" json:"run_id"`
	StartedAt time.Time `bson:"started_at" json:"started_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
