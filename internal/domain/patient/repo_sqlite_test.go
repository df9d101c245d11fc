package patient

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cloudreports/patients/internal/platform/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestTableRepoSQLite_MissingTableLoadsEmpty(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)

	tbl, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tbl.Empty() || len(tbl.Columns) != 0 {
		t.Errorf("expected empty table, got %+v", tbl)
	}
}

func TestTableRepoSQLite_RoundTrip(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)
	ctx := context.Background()

	want := NewTable([]string{"ID", "Name", "Temperature", "Blood_Pressure", "Allergies"},
		Record{"ID": 1, "Name": "Ann", "Temperature": 98.6, "Blood_Pressure": "120/80", "Allergies": "pollen, \"dust\""},
		Record{"ID": 2, "Name": "Bob", "Temperature": 99.1, "Blood_Pressure": "130/85"},
	)
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTableRepoSQLite_SaveAfterCaseVariantEdit(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)
	ctx := context.Background()

	tbl := NewTable([]string{"ID", "Name", "BMI"}, Record{"ID": 1, "Name": "Ann", "BMI": 22})
	if err := ApplyEdits(tbl, 0, map[string]Value{"bmi": 24}, "Dr. X", time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := repo.Save(ctx, tbl); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(tbl, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTableRepoSQLite_SaveReplacesSchema(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)
	ctx := context.Background()

	first := NewTable([]string{"ID", "Name", "Obsolete"}, Record{"ID": 1, "Name": "Ann", "Obsolete": "x"})
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := NewTable([]string{"ID", "Name"}, Record{"ID": 5, "Name": "Eve"})
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("expected whole-table replace (-want +got):\n%s", diff)
	}
}

func TestTableRepoSQLite_MixedColumnStoredAsText(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)
	ctx := context.Background()

	tbl := NewTable([]string{"ID", "Code"},
		Record{"ID": 1, "Code": 7},
		Record{"ID": 2, "Code": "A7"},
	)
	if err := repo.Save(ctx, tbl); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Get(0, "Code") != "7" || got.Get(1, "Code") != "A7" {
		t.Errorf("expected text cells, got %#v %#v", got.Get(0, "Code"), got.Get(1, "Code"))
	}
}

func TestTableRepoSQLite_EmptySchema(t *testing.T) {
	repo := NewTableRepoSQLite(openTestDB(t), "patients", nil)
	ctx := context.Background()

	if err := repo.Save(ctx, NewTable([]string{"ID"}, Record{"ID": 1})); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, &Table{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Empty() {
		t.Errorf("expected empty table, got %+v", got)
	}
}

func TestTableRepoSQLite_ClosedDBIsPersistenceError(t *testing.T) {
	conn := openTestDB(t)
	m := &fakeMetrics{}
	repo := NewTableRepoSQLite(conn, "patients", m)
	_ = conn.Close()

	_, err := repo.Load(context.Background())
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "load" {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
	err = repo.Save(context.Background(), sampleTable())
	if !errors.As(err, &pe) || pe.Op != "save" {
		t.Fatalf("expected save PersistenceError, got %v", err)
	}
	if m.ops["load_error"] != 1 || m.ops["save_error"] != 1 {
		t.Errorf("expected failed operations to be recorded, got %v", m.ops)
	}
}

func TestCreateTableSQL(t *testing.T) {
	tbl := NewTable([]string{"ID", "Temperature", "Name"},
		Record{"ID": 1, "Temperature": 98.6, "Name": "Ann"})

	got := createTableSQL(`"patients"`, tbl, pgTypeName)
	want := `CREATE TABLE "patients" ("ID" BIGINT, "Temperature" DOUBLE PRECISION, "Name" TEXT)`
	if got != want {
		t.Errorf("createTableSQL() = %s, want %s", got, want)
	}
	if got := createTableSQL(`"patients"`, tbl, sqliteTypeName); got != `CREATE TABLE "patients" ("ID" INTEGER, "Temperature" REAL, "Name" TEXT)` {
		t.Errorf("unexpected sqlite ddl %s", got)
	}
}
