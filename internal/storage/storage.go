// Package storage defines the backend-agnostic table repository used by the
// loader and the access provisioner. Backends register themselves from init()
// in their own packages (postgres, sqlite, mssql).
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupported is returned (wrapped) when a backend cannot perform an
// operation, e.g. role management on SQLite.
var ErrUnsupported = errors.New("storage: operation not supported by backend")

// Config is the minimal configuration needed to open a repository.
type Config struct {
	Kind string
	DSN  string
	// AdminDSN connects to a maintenance database for EnsureDatabase. Optional.
	AdminDSN string
}

// Repository creates tables from a TableSpec and bulk-loads rows into them.
//
// Rows passed to CopyRows are aligned with t.Columns and hold values already
// coerced to the column types: int64, bool, time.Time, string or nil. Numeric
// columns receive plain decimal strings.
type Repository interface {
	// EnsureDatabase creates the database if it does not exist.
	EnsureDatabase(ctx context.Context, name string) error
	// EnsureSchema creates the schema (namespace) if it does not exist.
	EnsureSchema(ctx context.Context, schema string) error

	TableExists(ctx context.Context, t TableSpec) (bool, error)
	// EnsureTable creates the table and any enumeration types it needs.
	// Existing tables are left as they are.
	EnsureTable(ctx context.Context, t TableSpec) error
	// DropTable drops the table if it exists.
	DropTable(ctx context.Context, t TableSpec) error
	// RenameTable renames t to newName within the same schema.
	RenameTable(ctx context.Context, t TableSpec, newName string) error

	CopyRows(ctx context.Context, t TableSpec, rows [][]any) (int64, error)

	Close()
}

// Grant gives a role privileges on every table of a schema, current and future.
type Grant struct {
	Role       string
	Database   string
	Schema     string
	Privileges []string
}

// Admin manages roles and privileges. Backends without access control do not
// implement it.
type Admin interface {
	// RevokePublic removes the default PUBLIC privileges on the database and schema.
	RevokePublic(ctx context.Context, database, schema string) error
	// EnsureRole creates a role that cannot log in.
	EnsureRole(ctx context.Context, name string) error
	// EnsureUser creates a login role, or resets its password when it exists.
	EnsureUser(ctx context.Context, name, password string) error
	GrantSchema(ctx context.Context, g Grant) error
	// GrantRole makes member a member of role.
	GrantRole(ctx context.Context, role, member string) error
}

// AdminOf returns the Admin side of repo, or ErrUnsupported.
func AdminOf(repo Repository) (Admin, error) {
	if a, ok := repo.(Admin); ok {
		return a, nil
	}
	return nil, fmt.Errorf("access control: %w", ErrUnsupported)
}

// Factory opens a repository for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind. It panics when kind is empty, f is
// nil or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
