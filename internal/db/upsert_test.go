package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertEmpty(t *testing.T) {
	t.Parallel()

	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "naf_sectors",
		Columns:      []string{"code"},
		ConflictKeys: []string{"code"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsertValidation(t *testing.T) {
	t.Parallel()

	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t"}, [][]any{{1}})
	assert.Error(t, err)

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "t",
		Columns: []string{"a"},
	}, [][]any{{1}})
	assert.Error(t, err)
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "naf_sectors"`).
		WithArgs("47", "Commerce de détail", 20, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "naf_sectors"`).
		WithArgs("62", "Programmation informatique", 15, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "naf_sectors",
		Columns:      []string{"code", "label", "score_bonus", "is_high_value"},
		ConflictKeys: []string{"code"},
	}, [][]any{
		{"47", "Commerce de détail", 20, true},
		{"62", "Programmation informatique", 15, true},
	})

	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertRowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "naf_sectors",
		Columns:      []string{"code", "label"},
		ConflictKeys: []string{"code"},
	}, [][]any{{"47"}})

	assert.Error(t, err)
}
