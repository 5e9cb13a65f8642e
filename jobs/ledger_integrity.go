package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atelier-erp/atelier/internal/jobs"
	"github.com/atelier-erp/atelier/internal/ledger"
)

const (
	violationOverfilled = "remaining_above_quantity"
	violationNegative   = "negative_balance"
)

// IntegritySource lists stock lines that break balance rules.
type IntegritySource interface {
	FindIntegrityViolations(ctx context.Context, limit int) ([]ledger.IntegrityViolation, error)
}

// LedgerIntegrityJob reports stock lines whose remaining or pending quantity is impossible.
type LedgerIntegrityJob struct {
	Source  IntegritySource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(source IntegritySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("limit", payload.Limit))
	violations, err := j.Source.FindIntegrityViolations(ctx, payload.Limit)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}

	counts := make(map[string]int)
	for _, v := range violations {
		kind := classifyViolation(v)
		counts[kind]++
		logger.Warn("ledger integrity violation",
			slog.String("kind", kind),
			slog.Int64("item_id", v.ItemID),
			slog.Int64("transaction_id", v.TransactionID),
			slog.String("quantity", v.Quantity.String()),
			slog.String("remaining", v.RemainingQuantity.String()),
			slog.String("pending", v.PendingQuantity.String()),
		)
	}
	for kind, n := range counts {
		j.metrics().AddIntegrityViolations(kind, n)
	}

	logger.Info("completed integrity scan",
		slog.Int("violations", len(violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func classifyViolation(v ledger.IntegrityViolation) string {
	if v.RemainingQuantity.IsNegative() || v.PendingQuantity.IsNegative() {
		return violationNegative
	}
	return violationOverfilled
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
