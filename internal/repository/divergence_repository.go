package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

// DivergenceRepository manages the durable database/ledger mismatch log.
type DivergenceRepository struct {
	db *sqlx.DB
}

// NewDivergenceRepository constructs a DivergenceRepository.
func NewDivergenceRepository(db *sqlx.DB) *DivergenceRepository {
	return &DivergenceRepository{db: db}
}

// Create records a divergence.
func (r *DivergenceRepository) Create(ctx context.Context, d *models.Divergence) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ledger_divergences (id, operation, class_id, subject_id, entity_id, reason, resolved, created_at) VALUES (:id, :operation, :class_id, :subject_id, :entity_id, :reason, :resolved, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("create divergence: %w", err)
	}
	return nil
}

// ListUnresolved returns open divergences oldest first, up to limit.
func (r *DivergenceRepository) ListUnresolved(ctx context.Context, limit int) ([]models.Divergence, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, operation, class_id, subject_id, entity_id, reason, resolved, resolved_at, resolved_tx, created_at FROM ledger_divergences WHERE resolved = FALSE ORDER BY created_at ASC LIMIT %d`, limit)
	var divergences []models.Divergence
	if err := r.db.SelectContext(ctx, &divergences, query); err != nil {
		return nil, fmt.Errorf("list divergences: %w", err)
	}
	return divergences, nil
}

// ListByClass returns all divergences touching a class.
func (r *DivergenceRepository) ListByClass(ctx context.Context, classID string) ([]models.Divergence, error) {
	const query = `SELECT id, operation, class_id, subject_id, entity_id, reason, resolved, resolved_at, resolved_tx, created_at FROM ledger_divergences WHERE class_id = $1 ORDER BY created_at DESC`
	var divergences []models.Divergence
	if err := r.db.SelectContext(ctx, &divergences, query, classID); err != nil {
		return nil, fmt.Errorf("list class divergences: %w", err)
	}
	return divergences, nil
}

// Resolve closes a divergence, recording the replaying transaction. The
// WHERE clause keeps a concurrent sweep from resolving the row twice.
func (r *DivergenceRepository) Resolve(ctx context.Context, id, txHash string, resolvedAt time.Time) (bool, error) {
	const query = `UPDATE ledger_divergences SET resolved = TRUE, resolved_at = $2, resolved_tx = $3 WHERE id = $1 AND resolved = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, resolvedAt, txHash)
	if err != nil {
		return false, fmt.Errorf("resolve divergence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve divergence: %w", err)
	}
	return affected == 1, nil
}
