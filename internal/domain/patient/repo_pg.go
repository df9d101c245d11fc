package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUndefinedTable is SQLSTATE 42P01.
const pgUndefinedTable = "42P01"

type tableRepoPG struct {
	pool    *pgxpool.Pool
	table   string
	metrics MetricsRecorder
}

// NewTableRepoPG returns a Repository backed by a PostgreSQL table.
func NewTableRepoPG(pool *pgxpool.Pool, table string, metrics MetricsRecorder) Repository {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &tableRepoPG{pool: pool, table: table, metrics: metrics}
}

func (r *tableRepoPG) Load(ctx context.Context) (t *Table, err error) {
	defer observe(ctx, r.metrics, "load", &err)()

	rows, err := r.pool.Query(ctx, `SELECT * FROM `+pgx.Identifier{r.table}.Sanitize())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return &Table{}, nil
		}
		return nil, persistErr("load", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	t = NewTable(cols)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, persistErr("load", fmt.Errorf("read row: %w", err))
		}
		rec := make(Record, len(cols))
		for i, v := range vals {
			if v = normalizePG(v); v != nil {
				rec[cols[i]] = v
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		// A missing table can also surface on the first Next.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return &Table{}, nil
		}
		return nil, persistErr("load", err)
	}
	return t, nil
}

// Save drops and recreates the table and bulk-loads every row in a single
// transaction. A failure leaves the previously committed table untouched.
func (r *tableRepoPG) Save(ctx context.Context, t *Table) (err error) {
	defer observe(ctx, r.metrics, "save", &err)()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return persistErr("save", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	ident := pgx.Identifier{r.table}
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+ident.Sanitize()); err != nil {
		return persistErr("save", fmt.Errorf("drop table: %w", err))
	}
	if _, err := tx.Exec(ctx, createTableSQL(ident.Sanitize(), t, pgTypeName)); err != nil {
		return persistErr("save", fmt.Errorf("create table: %w", err))
	}

	if len(t.Columns) > 0 && len(t.Rows) > 0 {
		kinds := InferKinds(t)
		rows := make([][]any, len(t.Rows))
		for i := range t.Rows {
			cells := t.Cells(i)
			for j := range cells {
				cells[j] = Coerce(cells[j], kinds[j])
			}
			rows[i] = cells
		}
		if _, err := tx.CopyFrom(ctx, ident, t.Columns, pgx.CopyFromRows(rows)); err != nil {
			return persistErr("save", fmt.Errorf("copy rows: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("save", fmt.Errorf("commit: %w", err))
	}
	return nil
}

func pgTypeName(k ColumnKind) string {
	switch k {
	case KindInteger:
		return "BIGINT"
	case KindReal:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// createTableSQL renders CREATE TABLE for t's columns with inferred types.
func createTableSQL(ident string, t *Table, typeName func(ColumnKind) string) string {
	kinds := InferKinds(t)
	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = quoteIdent(col) + " " + typeName(kinds[i])
	}
	return "CREATE TABLE " + ident + " (" + strings.Join(defs, ", ") + ")"
}

// normalizePG maps pgx-decoded values that Normalize does not know about.
func normalizePG(v any) Value {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		if n, ok := AsInt64(f.Float64); ok && x.Exp >= 0 {
			return n
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	}
	return Normalize(v)
}
