package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atelier-erp/atelier/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans stock lines for impossible balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LedgerIntegrityPayload bounds a single integrity scan.
type LedgerIntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// IdempotencyCleanupPayload sets the key retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task purging keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
