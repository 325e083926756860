package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"csvschema/internal/storage"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	execs  []execCall
	exists int
	closed bool
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return nil, nil
}

func (f *fakeDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return fakeRow{n: f.exists}
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("no transactions in fake")
}

func (f *fakeDB) Close() error { f.closed = true; return nil }

type fakeRow struct{ n int }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = r.n
	return nil
}

func crimesSpec() storage.TableSpec {
	return storage.TableSpec{
		Schema:     "crimes",
		Name:       "boston_crimes",
		PrimaryKey: "incident_number",
		Columns: []storage.ColumnSpec{
			{Name: "incident_number", Type: storage.TypeVarchar, Length: 10},
			{Name: "street", Type: storage.TypeVarchar, Length: 9000, Nullable: true},
			{Name: "shooting", Type: storage.TypeBoolean},
			{Name: "occurred_on_date", Type: storage.TypeTimestamp},
			{Name: "day_of_week", Type: storage.TypeEnum, Enum: []string{"Friday", "Wednesday"}},
		},
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateTableSQL(crimesSpec())
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	for _, want := range []string{
		"IF OBJECT_ID(@p1, 'U') IS NULL CREATE TABLE [crimes].[boston_crimes] (",
		"[incident_number] NVARCHAR(10) NOT NULL PRIMARY KEY",
		"[street] NVARCHAR(MAX) NULL",
		"[shooting] BIT NOT NULL",
		"[occurred_on_date] DATETIME2 NOT NULL",
		"[day_of_week] NVARCHAR(9) NOT NULL CHECK ([day_of_week] IN (N'Friday', N'Wednesday'))",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
}

func TestMssqlIdent_EscapesBracket(t *testing.T) {
	t.Parallel()

	if got := mssqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("mssqlIdent = %s", got)
	}
	if got := tableIdent(storage.TableSpec{Name: "t"}); got != "[t]" {
		t.Fatalf("tableIdent = %s", got)
	}
}

func TestRepo_EnsureTableBindsName(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	r := &Repo{db: db}
	if err := r.EnsureSchema(context.Background(), "crimes"); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureTable(context.Background(), crimesSpec()); err != nil {
		t.Fatal(err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("execs = %d", len(db.execs))
	}
	if db.execs[0].query != ensureSchemaSQL || db.execs[0].args[0] != "crimes" {
		t.Fatalf("schema exec = %+v", db.execs[0])
	}
	if db.execs[1].args[0] != "[crimes].[boston_crimes]" {
		t.Fatalf("table exec args = %v", db.execs[1].args)
	}
}

func TestRepo_TableExists(t *testing.T) {
	t.Parallel()

	r := &Repo{db: &fakeDB{exists: 1}}
	ok, err := r.TableExists(context.Background(), crimesSpec())
	if err != nil || !ok {
		t.Fatalf("TableExists = %v, %v", ok, err)
	}
}

func TestRepo_AdminStatements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := &fakeDB{}
	r := &Repo{db: db}

	if err := r.RevokePublic(ctx, "crime_db", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureRole(ctx, "readonly"); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureUser(ctx, "data_analyst", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := r.GrantRole(ctx, "readonly", "data_analyst"); err != nil {
		t.Fatal(err)
	}

	if got := db.execs[0].query; got != "REVOKE SELECT, INSERT, UPDATE, DELETE, REFERENCES ON SCHEMA::[dbo] FROM public" {
		t.Fatalf("revoke = %s", got)
	}
	if db.execs[1].query != ensureRoleSQL || db.execs[1].args[0] != "readonly" {
		t.Fatalf("role exec = %+v", db.execs[1])
	}
	if db.execs[2].args[0] != "data_analyst" || db.execs[2].args[1] != "s3cret" {
		t.Fatalf("user exec args = %v", db.execs[2].args)
	}
	if db.execs[3].query != grantRoleSQL {
		t.Fatalf("grant role exec = %+v", db.execs[3])
	}
}

func TestBuildGrantSchemaSQL_MapsPrivileges(t *testing.T) {
	t.Parallel()

	q, err := buildGrantSchemaSQL(storage.Grant{
		Role:       "readwrite",
		Schema:     "crimes",
		Privileges: []string{"select", "TRUNCATE", "trigger", "delete"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if q != "GRANT SELECT, ALTER, DELETE ON SCHEMA::[crimes] TO [readwrite]" {
		t.Fatalf("grant = %s", q)
	}

	if _, err := buildGrantSchemaSQL(storage.Grant{Role: "x"}); err == nil {
		t.Fatalf("expected error for empty privileges")
	}
}

func TestRepo_CopyRowsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	r := &Repo{db: &fakeDB{}}
	n, err := r.CopyRows(context.Background(), crimesSpec(), nil)
	if err != nil || n != 0 {
		t.Fatalf("CopyRows(nil) = %d, %v", n, err)
	}
}

func TestToBulkValue(t *testing.T) {
	t.Parallel()

	num := storage.ColumnSpec{Name: "lat", Type: storage.TypeNumeric, Nullable: true}
	txt := storage.ColumnSpec{Name: "district", Type: storage.TypeVarchar, Length: 3}

	tests := []struct {
		name    string
		col     storage.ColumnSpec
		in      any
		want    any
		wantErr bool
	}{
		{name: "numeric_string", col: num, in: "42.35779134", want: 42.35779134},
		{name: "numeric_null", col: num, in: nil, want: nil},
		{name: "numeric_garbage", col: num, in: "4x", wantErr: true},
		{name: "varchar_untouched", col: txt, in: "1.5", want: "1.5"},
		{name: "int_untouched", col: num, in: int64(3), want: int64(3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := toBulkValue(tc.col, tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}
