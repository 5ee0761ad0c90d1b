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

func TestClassRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "code", "teacher_id", "name", "description", "class_manager_address", "score_manager_address", "status", "tx_hash", "closed_at", "created_at", "updated_at"}).
		AddRow("class-1", "CS101", "tch-1", "Intro", nil, nil, nil, models.ClassStatusOpen, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE code = $1")).
		WithArgs("CS101").
		WillReturnRows(rows)

	class, err := repo.FindByCode(context.Background(), "CS101")
	require.NoError(t, err)
	require.Equal(t, models.ClassStatusOpen, class.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCloseIsSingleWinner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	closedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET status = $2, closed_at = $3, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("class-1", models.ClassStatusClosed, closedAt, models.ClassStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	closed, err := repo.Close(context.Background(), "class-1", closedAt)
	require.NoError(t, err)
	require.True(t, closed)

	mock.ExpectExec("UPDATE classes SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	closed, err = repo.Close(context.Background(), "class-1", closedAt)
	require.NoError(t, err)
	require.False(t, closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "code", "teacher_id", "name", "description", "class_manager_address", "score_manager_address", "status", "tx_hash", "closed_at", "created_at", "updated_at"}).
		AddRow("class-1", "CS101", "tch-1", "Intro", nil, nil, nil, models.ClassStatusOpen, nil, nil, now, now)
	mock.ExpectQuery("FROM classes WHERE 1=1").
		WithArgs("tch-1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("tch-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{TeacherID: "tch-1"})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
