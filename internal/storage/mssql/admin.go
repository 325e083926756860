package mssql

import (
	"context"
	"fmt"
	"strings"

	"csvschema/internal/storage"
)

const (
	ensureRoleSQL = `IF DATABASE_PRINCIPAL_ID(@p1) IS NULL EXEC('CREATE ROLE ' + QUOTENAME(@p1))`

	ensureUserSQL = `
IF SUSER_ID(@p1) IS NULL
	EXEC('CREATE LOGIN ' + QUOTENAME(@p1) + ' WITH PASSWORD = ' + QUOTENAME(@p2, ''''));
ELSE
	EXEC('ALTER LOGIN ' + QUOTENAME(@p1) + ' WITH PASSWORD = ' + QUOTENAME(@p2, ''''));
IF DATABASE_PRINCIPAL_ID(@p1) IS NULL
	EXEC('CREATE USER ' + QUOTENAME(@p1) + ' FOR LOGIN ' + QUOTENAME(@p1));`

	grantRoleSQL = `IF ISNULL(IS_ROLEMEMBER(@p1, @p2), 0) = 0 EXEC('ALTER ROLE ' + QUOTENAME(@p1) + ' ADD MEMBER ' + QUOTENAME(@p2))`
)

// RevokePublic removes the data privileges of the public role on the schema.
// SQL Server has no database-level PUBLIC grants to revoke.
func (r *Repo) RevokePublic(ctx context.Context, database, schema string) error {
	if _, err := r.db.ExecContext(ctx, buildRevokePublicSQL(schema)); err != nil {
		return fmt.Errorf("revoke public: %w", err)
	}
	return nil
}

func (r *Repo) EnsureRole(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, ensureRoleSQL, name); err != nil {
		return fmt.Errorf("create role %s: %w", name, err)
	}
	return nil
}

// EnsureUser creates (or updates the password of) a server login and a
// database user mapped to it.
func (r *Repo) EnsureUser(ctx context.Context, name, password string) error {
	if _, err := r.db.ExecContext(ctx, ensureUserSQL, name, password); err != nil {
		return fmt.Errorf("ensure user %s: %w", name, err)
	}
	return nil
}

func (r *Repo) GrantSchema(ctx context.Context, g storage.Grant) error {
	q, err := buildGrantSchemaSQL(g)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("grant %s: %w", g.Role, err)
	}
	return nil
}

func (r *Repo) GrantRole(ctx context.Context, role, member string) error {
	if _, err := r.db.ExecContext(ctx, grantRoleSQL, role, member); err != nil {
		return fmt.Errorf("grant %s to %s: %w", role, member, err)
	}
	return nil
}

func schemaOrDefault(s string) string {
	if s == "" {
		return "dbo"
	}
	return s
}

func buildRevokePublicSQL(schema string) string {
	return fmt.Sprintf("REVOKE SELECT, INSERT, UPDATE, DELETE, REFERENCES ON SCHEMA::%s FROM public",
		mssqlIdent(schemaOrDefault(schema)))
}

// mssqlPrivilege maps a privilege name to its SQL Server schema permission.
// TRUNCATE and TRIGGER both require ALTER.
func mssqlPrivilege(p string) string {
	switch p = strings.ToUpper(strings.TrimSpace(p)); p {
	case "TRUNCATE", "TRIGGER":
		return "ALTER"
	default:
		return p
	}
}

func buildGrantSchemaSQL(g storage.Grant) (string, error) {
	if g.Role == "" {
		return "", fmt.Errorf("grant: role is empty")
	}
	if len(g.Privileges) == 0 {
		return "", fmt.Errorf("grant %s: no privileges", g.Role)
	}

	seen := make(map[string]bool, len(g.Privileges))
	privs := make([]string, 0, len(g.Privileges))
	for _, p := range g.Privileges {
		m := mssqlPrivilege(p)
		if seen[m] {
			continue
		}
		seen[m] = true
		privs = append(privs, m)
	}

	return fmt.Sprintf("GRANT %s ON SCHEMA::%s TO %s",
		strings.Join(privs, ", "), mssqlIdent(schemaOrDefault(g.Schema)), mssqlIdent(g.Role)), nil
}
