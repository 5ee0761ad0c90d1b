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

func TestDivergenceRepositoryCreateAndResolve(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDivergenceRepository(db)

	mock.ExpectExec("INSERT INTO ledger_divergences").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Divergence{
		Operation: models.DivergenceApproveStudent,
		ClassID:   "class-1",
		Reason:    "confirmation timed out",
	})
	require.NoError(t, err)

	resolvedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_divergences SET resolved = TRUE, resolved_at = $2, resolved_tx = $3 WHERE id = $1 AND resolved = FALSE")).
		WithArgs("div-1", resolvedAt, "0xfeed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Resolve(context.Background(), "div-1", "0xfeed", resolvedAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDivergenceRepositoryListUnresolved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDivergenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "operation", "class_id", "subject_id", "entity_id", "reason", "resolved", "resolved_at", "resolved_tx", "created_at"}).
		AddRow("div-1", models.DivergenceRecordScore, "class-1", nil, nil, "node unavailable", false, nil, nil, time.Now())
	mock.ExpectQuery("FROM ledger_divergences WHERE resolved = FALSE").
		WillReturnRows(rows)

	divergences, err := repo.ListUnresolved(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, divergences, 1)
	require.Equal(t, models.DivergenceRecordScore, divergences[0].Operation)
	require.NoError(t, mock.ExpectationsWereMet())
}
