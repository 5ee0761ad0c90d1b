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

// EnrollmentRepository manages class membership rows.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts a membership row. The insert is idempotent on the
// (class, student) pair so replaying an approval cannot double-enroll.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, class_id, student_id, wallet_address, joined_at) VALUES (:id, :class_id, :student_id, :wallet_address, :joined_at) ON CONFLICT (class_id, student_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes a membership row and reports whether one existed.
func (r *EnrollmentRepository) Delete(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `DELETE FROM enrollments WHERE class_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return affected == 1, nil
}

// Exists checks class membership for a student.
func (r *EnrollmentRepository) Exists(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListByClass returns members of a class joined with class context.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.class_id, e.student_id, e.wallet_address, e.joined_at, c.code AS class_code, c.name AS class_name
        FROM enrollments e JOIN classes c ON c.id = e.class_id
        WHERE e.class_id = $1 ORDER BY e.joined_at ASC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, classID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return details, nil
}
