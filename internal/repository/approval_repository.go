package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

// ErrDuplicateApproval is returned when a second request row is attempted
// for the same (class, student) pair. The unique index is the arbiter, so
// two racing requests resolve to one row.
var ErrDuplicateApproval = errors.New("approval already exists")

const approvalColumns = `id, class_id, student_id, wallet_address, status, reviewed_by, reviewed_at, rejection_reason, tx_hash, requested_at`

// ApprovalRepository manages persistence for enrollment requests.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs an ApprovalRepository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a request row. Student-filed requests arrive PENDING;
// roster invites insert pre-reviewed APPROVED rows. A duplicate
// (class, student) pair returns ErrDuplicateApproval.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approvals (id, class_id, student_id, wallet_address, status, reviewed_by, reviewed_at, requested_at)
        VALUES (:id, :class_id, :student_id, :wallet_address, :status, :reviewed_by, :reviewed_at, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateApproval
		}
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// FindByClassAndStudent fetches the request row for a pair.
func (r *ApprovalRepository) FindByClassAndStudent(ctx context.Context, classID, studentID string) (*models.Approval, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvals WHERE class_id = $1 AND student_id = $2 LIMIT 1`, approvalColumns)
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find approval: %w", err)
	}
	return &approval, nil
}

// FindByID fetches a request by identifier.
func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*models.Approval, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvals WHERE id = $1 LIMIT 1`, approvalColumns)
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find approval by id: %w", err)
	}
	return &approval, nil
}

// ListByClass returns request rows for a class, optionally filtered by
// status, joined with student identity.
func (r *ApprovalRepository) ListByClass(ctx context.Context, classID string, status models.ApprovalStatus) ([]models.ApprovalDetail, error) {
	query := `SELECT a.id, a.class_id, a.student_id, a.wallet_address, a.status, a.reviewed_by, a.reviewed_at, a.rejection_reason, a.tx_hash, a.requested_at,
        u.email AS student_email, u.full_name AS student_name
        FROM approvals a JOIN users u ON u.id = a.student_id
        WHERE a.class_id = $1`
	args := []interface{}{classID}
	if status != "" {
		query += " AND a.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY a.requested_at ASC"

	var details []models.ApprovalDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return details, nil
}

// ClaimPending transitions a request out of PENDING into the decided
// status. The WHERE clause on status makes concurrent decisions race for
// a single winner; losers get false.
func (r *ApprovalRepository) ClaimPending(ctx context.Context, id string, status models.ApprovalStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error) {
	const query = `UPDATE approvals SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5 WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewerID, reviewedAt, reason, models.ApprovalStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim approval: %w", err)
	}
	return affected == 1, nil
}

// SetTxHash records the whitelist transaction after an approval confirms
// on chain.
func (r *ApprovalRepository) SetTxHash(ctx context.Context, id, txHash string) error {
	const query = `UPDATE approvals SET tx_hash = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, txHash); err != nil {
		return fmt.Errorf("set approval tx hash: %w", err)
	}
	return nil
}
