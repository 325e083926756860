package postgres

import (
	"context"
	"fmt"
	"strings"

	"csvschema/internal/storage"
)

// RevokePublic removes the privileges PUBLIC holds by default on the database
// and on the public and target schemas.
func (r *Repo) RevokePublic(ctx context.Context, database, schema string) error {
	for _, s := range buildRevokePublicSQL(database, schema) {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("revoke public: %w", err)
		}
	}
	return nil
}

func (r *Repo) roleExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup role %s: %w", name, err)
	}
	return exists, nil
}

// EnsureRole creates a NOLOGIN role when it does not exist.
func (r *Repo) EnsureRole(ctx context.Context, name string) error {
	exists, err := r.roleExists(ctx, name)
	if err != nil || exists {
		return err
	}
	if _, err := r.pool.Exec(ctx, "CREATE ROLE "+pgIdent(name)+" NOLOGIN"); err != nil {
		return fmt.Errorf("create role %s: %w", name, err)
	}
	return nil
}

// EnsureUser creates a LOGIN role, or resets the password of an existing one.
func (r *Repo) EnsureUser(ctx context.Context, name, password string) error {
	exists, err := r.roleExists(ctx, name)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, buildUserSQL(name, password, exists)); err != nil {
		return fmt.Errorf("ensure user %s: %w", name, err)
	}
	return nil
}

// GrantSchema grants g.Privileges on all current and future tables of the
// schema, plus CONNECT and USAGE.
func (r *Repo) GrantSchema(ctx context.Context, g storage.Grant) error {
	stmts, err := buildGrantSchemaSQL(g)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("grant %s: %w", g.Role, err)
		}
	}
	return nil
}

// GrantRole adds member to role. Repeated grants are accepted by the server.
func (r *Repo) GrantRole(ctx context.Context, role, member string) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf("GRANT %s TO %s", pgIdent(role), pgIdent(member))); err != nil {
		return fmt.Errorf("grant %s to %s: %w", role, member, err)
	}
	return nil
}

func buildRevokePublicSQL(database, schema string) []string {
	out := make([]string, 0, 3)
	if database != "" {
		out = append(out, "REVOKE ALL ON DATABASE "+pgIdent(database)+" FROM PUBLIC")
	}
	out = append(out, "REVOKE ALL ON SCHEMA public FROM PUBLIC")
	if schema != "" && schema != "public" {
		out = append(out, "REVOKE ALL ON SCHEMA "+pgIdent(schema)+" FROM PUBLIC")
	}
	return out
}

func buildUserSQL(name, password string, exists bool) string {
	verb := "CREATE ROLE"
	if exists {
		verb = "ALTER ROLE"
	}
	return fmt.Sprintf("%s %s WITH LOGIN PASSWORD %s", verb, pgIdent(name), quoteLiteral(password))
}

func buildGrantSchemaSQL(g storage.Grant) ([]string, error) {
	if g.Role == "" {
		return nil, fmt.Errorf("grant: role is empty")
	}
	schema := g.Schema
	if schema == "" {
		schema = "public"
	}

	privs := make([]string, 0, len(g.Privileges))
	for _, p := range g.Privileges {
		privs = append(privs, strings.ToUpper(strings.TrimSpace(p)))
	}

	role := pgIdent(g.Role)
	out := make([]string, 0, 4)
	if g.Database != "" {
		out = append(out, fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", pgIdent(g.Database), role))
	}
	out = append(out, fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s", pgIdent(schema), role))
	if len(privs) > 0 {
		list := strings.Join(privs, ", ")
		out = append(out,
			fmt.Sprintf("GRANT %s ON ALL TABLES IN SCHEMA %s TO %s", list, pgIdent(schema), role),
			fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT %s ON TABLES TO %s", pgIdent(schema), list, role),
		)
	}
	return out, nil
}
