package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

// SubmissionRepository manages submission fingerprints.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert stores the latest fingerprint for an (assignment, student)
// pair. A re-submission replaces the hash and timestamp in place.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, content_hash, tx_hash, submitted_at)
        VALUES (:id, :assignment_id, :student_id, :content_hash, :tx_hash, :submitted_at)
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET content_hash = EXCLUDED.content_hash, tx_hash = EXCLUDED.tx_hash, submitted_at = EXCLUDED.submitted_at`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// SetTxHash records the chain transaction after a submission mirror
// write confirms.
func (r *SubmissionRepository) SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error {
	const query = `UPDATE submissions SET tx_hash = $3 WHERE assignment_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, assignmentID, studentID, txHash); err != nil {
		return fmt.Errorf("set submission tx hash: %w", err)
	}
	return nil
}

// Find fetches the submission for an (assignment, student) pair.
func (r *SubmissionRepository) Find(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content_hash, tx_hash, submitted_at FROM submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &submission, nil
}

// ListByAssignment returns submissions for an assignment joined with
// student identity, for the grading view.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.content_hash, s.tx_hash, s.submitted_at,
        u.email AS student_email, COALESCE(u.wallet_address, '') AS wallet_address
        FROM submissions s JOIN users u ON u.id = s.student_id
        WHERE s.assignment_id = $1 ORDER BY s.submitted_at ASC`
	var details []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &details, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return details, nil
}
