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

// ScoreRepository manages recorded grades.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs a ScoreRepository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Upsert records a grade for an (assignment, student) pair. Re-grading
// replaces value, grader and timestamp; COALESCE keeps the previous
// ledger transaction reference when the newer write produced none.
func (r *ScoreRepository) Upsert(ctx context.Context, score *models.Score) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.RecordedAt.IsZero() {
		score.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scores (id, class_id, assignment_id, student_id, value, recorded_by, tx_hash, recorded_at)
        VALUES (:id, :class_id, :assignment_id, :student_id, :value, :recorded_by, :tx_hash, :recorded_at)
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET value = EXCLUDED.value, recorded_by = EXCLUDED.recorded_by, recorded_at = EXCLUDED.recorded_at,
            tx_hash = COALESCE(EXCLUDED.tx_hash, scores.tx_hash)`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// SetTxHash records the chain transaction after a grade mirror write
// confirms.
func (r *ScoreRepository) SetTxHash(ctx context.Context, assignmentID, studentID, txHash string) error {
	const query = `UPDATE scores SET tx_hash = $3 WHERE assignment_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, assignmentID, studentID, txHash); err != nil {
		return fmt.Errorf("set score tx hash: %w", err)
	}
	return nil
}

// Find fetches the grade for an (assignment, student) pair.
func (r *ScoreRepository) Find(ctx context.Context, assignmentID, studentID string) (*models.Score, error) {
	const query = `SELECT id, class_id, assignment_id, student_id, value, recorded_by, tx_hash, recorded_at FROM scores WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var score models.Score
	if err := r.db.GetContext(ctx, &score, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find score: %w", err)
	}
	return &score, nil
}

// ListByAssignment returns all grades for an assignment.
func (r *ScoreRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Score, error) {
	const query = `SELECT id, class_id, assignment_id, student_id, value, recorded_by, tx_hash, recorded_at FROM scores WHERE assignment_id = $1 ORDER BY recorded_at ASC`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}

// ListByStudent returns a student's grades within a class.
func (r *ScoreRepository) ListByStudent(ctx context.Context, classID, studentID string) ([]models.Score, error) {
	const query = `SELECT id, class_id, assignment_id, student_id, value, recorded_by, tx_hash, recorded_at FROM scores WHERE class_id = $1 AND student_id = $2 ORDER BY recorded_at ASC`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, classID, studentID); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return scores, nil
}

// ReportRows builds the flattened export rows for a class: every
// enrolled student crossed with every assignment, with the grade where
// one exists.
func (r *ScoreRepository) ReportRows(ctx context.Context, classID string) ([]models.ScoreReportRow, error) {
	const query = `SELECT u.email AS student_email, u.full_name AS student_name, e.wallet_address,
        a.title AS assignment_title, s.value, s.tx_hash
        FROM enrollments e
        JOIN users u ON u.id = e.student_id
        CROSS JOIN assignments a
        LEFT JOIN scores s ON s.assignment_id = a.id AND s.student_id = e.student_id
        WHERE e.class_id = $1 AND a.class_id = $1
        ORDER BY u.full_name ASC, a.created_at ASC`
	var rows []models.ScoreReportRow
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("score report rows: %w", err)
	}
	return rows, nil
}
