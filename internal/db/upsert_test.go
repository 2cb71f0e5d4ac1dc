package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertEmptyIsNoop(t *testing.T) {
	mock := newMockPool(t)

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "crm_data.owners",
		Columns:      []string{"owner_id", "email"},
		ConflictKeys: []string{"owner_id"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertValidatesConfig(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"o1"}}

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "crm_data.owners",
		ConflictKeys: []string{"owner_id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "crm_data.owners",
		Columns: []string{"owner_id"},
	}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert(t *testing.T) {
	mock := newMockPool(t)

	cols := []string{"owner_id", "email", "active"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_crm_data_owners" \(LIKE "crm_data"\."owners" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_crm_data_owners"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "crm_data"\."owners" .* ON CONFLICT \("owner_id"\) DO UPDATE SET "email" = EXCLUDED\."email", "active" = EXCLUDED\."active"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	rows := [][]any{
		{"o1", "a@example.com", true},
		{"o2", "b@example.com", false},
	}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "crm_data.owners",
		Columns:      cols,
		ConflictKeys: []string{"owner_id"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"a", "b"`, quoteAndJoin([]string{"a", "b"}))
}
