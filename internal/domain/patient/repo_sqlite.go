package patient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type tableRepoSQLite struct {
	db      *sql.DB
	table   string
	metrics MetricsRecorder
}

// NewTableRepoSQLite returns a Repository backed by a table in an SQLite
// database opened with the modernc.org/sqlite driver.
func NewTableRepoSQLite(db *sql.DB, table string, metrics MetricsRecorder) Repository {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &tableRepoSQLite{db: db, table: table, metrics: metrics}
}

func (r *tableRepoSQLite) exists(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, r.table).Scan(&n)
	return n > 0, err
}

func (r *tableRepoSQLite) Load(ctx context.Context) (t *Table, err error) {
	defer observe(ctx, r.metrics, "load", &err)()

	ok, err := r.exists(ctx)
	if err != nil {
		return nil, persistErr("load", err)
	}
	if !ok {
		return &Table{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT * FROM `+quoteIdent(r.table))
	if err != nil {
		return nil, persistErr("load", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, persistErr("load", err)
	}

	t = NewTable(cols)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, persistErr("load", fmt.Errorf("scan: %w", err))
		}
		rec := make(Record, len(cols))
		for i, v := range vals {
			if v = Normalize(v); v != nil {
				rec[cols[i]] = v
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("load", err)
	}
	return t, nil
}

func (r *tableRepoSQLite) Save(ctx context.Context, t *Table) (err error) {
	defer observe(ctx, r.metrics, "save", &err)()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("save", fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	ident := quoteIdent(r.table)
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+ident); err != nil {
		return persistErr("save", fmt.Errorf("drop table: %w", err))
	}

	// SQLite rejects a table without columns; an empty schema is stored as
	// no table at all, which loads back as an empty table.
	if len(t.Columns) > 0 {
		if _, err := tx.ExecContext(ctx, createTableSQL(ident, t, sqliteTypeName)); err != nil {
			return persistErr("save", fmt.Errorf("create table: %w", err))
		}
		if err := r.insertRows(ctx, tx, ident, t); err != nil {
			return persistErr("save", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("save", fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *tableRepoSQLite) insertRows(ctx context.Context, tx *sql.Tx, ident string, t *Table) error {
	if len(t.Rows) == 0 {
		return nil
	}
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+ident+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	kinds := InferKinds(t)
	for i := range t.Rows {
		cells := t.Cells(i)
		for j := range cells {
			cells[j] = Coerce(cells[j], kinds[j])
		}
		if _, err := stmt.ExecContext(ctx, cells...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

func sqliteTypeName(k ColumnKind) string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}
