package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

// Outcome reports how the ledger half of a dual write went. The database
// half has already committed by the time an Outcome exists, so a
// divergent outcome is a warning attached to a successful response,
// never an error.
type Outcome struct {
	TxHash    *string `json:"tx_hash,omitempty"`
	Divergent bool    `json:"divergent"`
	Reason    string  `json:"reason,omitempty"`
}

type divergenceWriter interface {
	Create(ctx context.Context, d *models.Divergence) error
}

// Coordinator runs the ledger side of a dual write after the database
// side committed. A failed ledger write is downgraded to a durable
// divergence row for the reconciler to replay.
type Coordinator struct {
	divergences divergenceWriter
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewCoordinator constructs a Coordinator. metrics may be nil.
func NewCoordinator(divergences divergenceWriter, metrics *MetricsService, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{divergences: divergences, metrics: metrics, logger: logger}
}

// Run invokes the ledger write and folds its result into an Outcome.
// record carries the operation and entity identifiers used for the
// divergence row when the write fails.
func (c *Coordinator) Run(ctx context.Context, record models.Divergence, write func(ctx context.Context) (string, error)) Outcome {
	started := time.Now()
	txHash, err := write(ctx)
	if err == nil {
		c.metrics.ObserveLedgerWrite(record.Operation, LedgerResultConfirmed, time.Since(started))
		return Outcome{TxHash: &txHash}
	}

	c.metrics.ObserveLedgerWrite(record.Operation, LedgerResultDiverged, time.Since(started))
	c.metrics.RecordDivergence(record.Operation)
	record.Reason = err.Error()
	c.logger.Warn("ledger write diverged",
		zap.String("operation", record.Operation),
		zap.String("class_id", record.ClassID),
		zap.Error(err))

	if createErr := c.divergences.Create(ctx, &record); createErr != nil {
		// the mismatch is now only visible in logs; the reconciler
		// cannot replay what it cannot see
		c.logger.Error("failed to persist divergence",
			zap.String("operation", record.Operation),
			zap.Error(createErr))
	}
	return Outcome{Divergent: true, Reason: record.Reason}
}
