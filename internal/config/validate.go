package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding, addressed by a JSON-ish path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// validPrivileges is the set of table privileges a group may be granted.
var validPrivileges = map[string]bool{
	"SELECT":     true,
	"INSERT":     true,
	"UPDATE":     true,
	"DELETE":     true,
	"TRUNCATE":   true,
	"REFERENCES": true,
	"TRIGGER":    true,
}

// ValidPrivilege reports whether p (case-insensitive) is a grantable privilege.
func ValidPrivilege(p string) bool {
	return validPrivileges[strings.ToUpper(strings.TrimSpace(p))]
}

// ValidatePipeline checks a pipeline for problems that would fail a run.
// Errors block the run; warnings are informational.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch p.Source.Kind {
	case "file":
		if strings.TrimSpace(p.Source.File.Path) == "" {
			add(SeverityError, "source.file.path", "required for source.kind=file")
		}
		switch strings.ToLower(p.Source.File.Compression) {
		case "", "none", "gzip", "gz", "bzip2", "bz2", "lz4":
		default:
			add(SeverityError, "source.file.compression", "unsupported compression %q", p.Source.File.Compression)
		}
	case "http":
		if p.Source.HTTP == nil || strings.TrimSpace(p.Source.HTTP.URL) == "" {
			add(SeverityError, "source.http.url", "required for source.kind=http")
		}
	default:
		add(SeverityError, "source.kind", "must be file or http, got %q", p.Source.Kind)
	}

	if p.Parser.Kind != "" && p.Parser.Kind != "csv" {
		add(SeverityError, "parser.kind", "only csv is supported, got %q", p.Parser.Kind)
	}

	if p.Profile.Workers < 0 {
		add(SeverityError, "profile.workers", "must be >= 0")
	}

	if strings.TrimSpace(p.Schema.Table) == "" && strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "schema.table", "required when job is empty")
	}
	if p.Schema.EnumMaxDistinct < 0 {
		add(SeverityError, "schema.enum_max_distinct", "must be >= 0")
	}
	if p.Schema.VarcharPadding < 0 {
		add(SeverityError, "schema.varchar_padding", "must be >= 0")
	}
	if p.Schema.PrimaryKey != "" && p.Schema.AutoPrimaryKey {
		add(SeverityWarning, "schema.auto_primary_key", "ignored because schema.primary_key is set")
	}

	switch p.Storage.Kind {
	case "postgres", "mssql", "sqlite":
	default:
		add(SeverityError, "storage.kind", "must be postgres, mssql or sqlite, got %q", p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.DB.DSN) == "" {
		add(SeverityError, "storage.db.dsn", "required")
	}
	switch p.Storage.DB.LoadMode() {
	case "create", "append", "replace":
	default:
		add(SeverityError, "storage.db.mode", "must be create, append or replace, got %q", p.Storage.DB.Mode)
	}
	if p.Storage.DB.Database != "" && p.Storage.DB.AdminDSN == "" {
		add(SeverityWarning, "storage.db.database", "ignored without storage.db.admin_dsn")
	}

	hasAccess := p.Access.RevokePublic || len(p.Access.Groups) > 0 || len(p.Access.Users) > 0
	if hasAccess && p.Storage.Kind == "sqlite" {
		add(SeverityError, "access", "sqlite has no roles; remove the access section")
	}

	groups := make(map[string]bool, len(p.Access.Groups))
	for i, g := range p.Access.Groups {
		path := fmt.Sprintf("access.groups[%d]", i)
		if strings.TrimSpace(g.Name) == "" {
			add(SeverityError, path+".name", "required")
		}
		if groups[g.Name] {
			add(SeverityError, path+".name", "duplicate group %q", g.Name)
		}
		groups[g.Name] = true
		if len(g.Privileges) == 0 {
			add(SeverityWarning, path+".privileges", "group %q has no privileges", g.Name)
		}
		for j, priv := range g.Privileges {
			if !ValidPrivilege(priv) {
				add(SeverityError, fmt.Sprintf("%s.privileges[%d]", path, j), "unknown privilege %q", priv)
			}
		}
	}

	users := make(map[string]bool, len(p.Access.Users))
	for i, u := range p.Access.Users {
		path := fmt.Sprintf("access.users[%d]", i)
		if strings.TrimSpace(u.Name) == "" {
			add(SeverityError, path+".name", "required")
		}
		if users[u.Name] || groups[u.Name] {
			add(SeverityError, path+".name", "duplicate role %q", u.Name)
		}
		users[u.Name] = true
		if strings.TrimSpace(u.PasswordEnv) == "" {
			add(SeverityError, path+".password_env", "required")
		}
		for j, g := range u.Groups {
			if !groups[g] {
				add(SeverityError, fmt.Sprintf("%s.groups[%d]", path, j), "unknown group %q", g)
			}
		}
	}

	if p.Runtime.BatchSize < 0 {
		add(SeverityError, "runtime.batch_size", "must be >= 0")
	}

	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
