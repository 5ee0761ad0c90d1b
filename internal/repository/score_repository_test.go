package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

func TestScoreRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectExec("INSERT INTO scores").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), &models.Score{
		ClassID:      "class-1",
		AssignmentID: "asg-1",
		StudentID:    "stu-1",
		Value:        87,
		RecordedBy:   "tch-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositorySetTxHash(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scores SET tx_hash = $3 WHERE assignment_id = $1 AND student_id = $2")).
		WithArgs("asg-1", "stu-1", "0xdeadbeef").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetTxHash(context.Background(), "asg-1", "stu-1", "0xdeadbeef")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	tx := "0xdeadbeef"
	rows := sqlmock.NewRows([]string{"id", "class_id", "assignment_id", "student_id", "value", "recorded_by", "tx_hash", "recorded_at"}).
		AddRow("sco-1", "class-1", "asg-1", "stu-1", 87, "tch-1", tx, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, assignment_id, student_id, value, recorded_by, tx_hash, recorded_at FROM scores WHERE assignment_id = $1 AND student_id = $2")).
		WithArgs("asg-1", "stu-1").
		WillReturnRows(rows)

	score, err := repo.Find(context.Background(), "asg-1", "stu-1")
	require.NoError(t, err)
	require.Equal(t, 87, score.Value)
	require.NotNil(t, score.TxHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryReportRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	value := 92
	rows := sqlmock.NewRows([]string{"student_email", "student_name", "wallet_address", "assignment_title", "value", "tx_hash"}).
		AddRow("a@example.com", "Alice", "0xabc", "Homework 1", value, nil).
		AddRow("a@example.com", "Alice", "0xabc", "Homework 2", nil, nil)
	mock.ExpectQuery("SELECT u.email AS student_email").
		WithArgs("class-1").
		WillReturnRows(rows)

	report, err := repo.ReportRows(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, report, 2)
	require.NotNil(t, report[0].Value)
	require.Nil(t, report[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}
