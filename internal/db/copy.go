package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
// The table name may be schema-qualified ("crm_data.pipeline_units").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// ReplacePartition deletes all rows matching keyColumn = keyValue and
// COPY-loads the replacement rows in one transaction. It is the idempotence
// primitive for snapshot-scoped tables: re-running a snapshot replaces its
// partition instead of double-appending.
func ReplacePartition(ctx context.Context, pool Pool, table, keyColumn string, keyValue any, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: begin tx", table)
	}
	defer tx.Rollback(ctx)

	deleteSQL := "DELETE FROM " + sanitizeTable(table) + " WHERE " + pgx.Identifier{keyColumn}.Sanitize() + " = $1"
	if _, err := tx.Exec(ctx, deleteSQL, keyValue); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: delete partition", table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace %s: COPY", table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: commit tx", table)
	}

	return n, nil
}

// tableIdent converts a possibly schema-qualified name into a pgx.Identifier.
func tableIdent(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// sanitizeTable handles schema-qualified table names like "crm_data.deals".
func sanitizeTable(table string) string {
	return tableIdent(table).Sanitize()
}
