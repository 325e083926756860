// Package config defines the JSON pipeline configuration consumed by cmd/load
// and the validation rules applied before a run.
//
// A pipeline describes one load: where the delimited source lives, how to parse
// it, how the profile turns into a table definition, which backend receives the
// rows and which roles/users are provisioned afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Pipeline is the top-level pipeline configuration.
type Pipeline struct {
	Job     string        `json:"job"`
	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Profile ProfileConfig `json:"profile"`
	Schema  SchemaConfig  `json:"schema"`
	Storage Storage       `json:"storage"`
	Access  AccessConfig  `json:"access"`
	Runtime RuntimeConfig `json:"runtime"`
}

// Source selects the input location.
type Source struct {
	// Kind is "file" or "http".
	Kind string      `json:"kind"`
	File FileSource  `json:"file"`
	HTTP *HTTPSource `json:"http,omitempty"`
}

// FileSource is a local file. Compression is detected from the extension when
// empty ("gzip", "bzip2", "lz4" or "none").
type FileSource struct {
	Path        string `json:"path"`
	Compression string `json:"compression,omitempty"`
}

// HTTPSource is a remote file fetched with GET.
type HTTPSource struct {
	URL                string `json:"url"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
}

// Parser configures the delimited text reader.
//
// Recognised options: "comma" (string, default ","), "lazy_quotes" (bool),
// "charset" (e.g. "windows-1250", default UTF-8), "header_map" (object
// renaming header fields, source name to new name).
type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// ProfileConfig controls the profiling pass.
type ProfileConfig struct {
	// Workers > 1 profiles columns concurrently, one read handle per worker.
	// 0 or 1 uses the single-pass table scan.
	Workers int `json:"workers"`

	// Report logs the cardinality report after profiling.
	Report bool `json:"report"`
}

// SchemaConfig is the policy that turns column profiles into a table.
type SchemaConfig struct {
	// Name is the database schema (namespace). Empty means the backend default.
	Name string `json:"name"`
	// Table is the target table name. Defaults to the normalized job name.
	Table string `json:"table"`

	PrimaryKey     string `json:"primary_key,omitempty"`
	AutoPrimaryKey bool   `json:"auto_primary_key,omitempty"`

	// EnumColumns are always rendered as enumerations.
	EnumColumns []string `json:"enum_columns,omitempty"`
	// EnumMaxDistinct > 0 also renders any column with at most this many
	// distinct values as an enumeration.
	EnumMaxDistinct int `json:"enum_max_distinct,omitempty"`

	// VarcharPadding is added to the observed max length of text columns.
	VarcharPadding int `json:"varchar_padding,omitempty"`

	// Types overrides the inferred logical type per normalized column.
	Types map[string]string `json:"types,omitempty"`

	// RowHash adds a SHA-256 column computed from source fields.
	RowHash *RowHashConfig `json:"row_hash,omitempty"`
}

// RowHashConfig configures the derived hash column.
type RowHashConfig struct {
	// Column defaults to "row_hash".
	Column string `json:"column"`
	// Fields are source columns in hashing order. Empty hashes every column.
	Fields            []string `json:"fields"`
	IncludeFieldNames bool     `json:"include_field_names,omitempty"`
}

// Storage selects and configures the backend.
type Storage struct {
	// Kind is "postgres", "mssql" or "sqlite".
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig holds backend connection and load settings.
type DBConfig struct {
	DSN string `json:"dsn"`

	// AdminDSN, when set together with Database, is used to create the target
	// database before connecting with DSN.
	AdminDSN string `json:"admin_dsn,omitempty"`
	Database string `json:"database,omitempty"`

	// Mode is "create" (default), "append" or "replace".
	Mode string `json:"mode"`
}

// AccessConfig describes role groups and users provisioned after the load.
type AccessConfig struct {
	RevokePublic bool          `json:"revoke_public"`
	Groups       []GroupConfig `json:"groups"`
	Users        []UserConfig  `json:"users"`
}

// GroupConfig is a NOLOGIN role granted privileges on the target schema.
type GroupConfig struct {
	Name       string   `json:"name"`
	Privileges []string `json:"privileges"`
}

// UserConfig is a LOGIN role. The password is read from PasswordEnv.
type UserConfig struct {
	Name        string   `json:"name"`
	PasswordEnv string   `json:"password_env"`
	Groups      []string `json:"groups"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	BatchSize int `json:"batch_size"`
}

// Load reads and decodes a pipeline file.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var p Pipeline
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// ExpandDSN expands $VAR references in a DSN.
func ExpandDSN(dsn string) string {
	return os.ExpandEnv(strings.TrimSpace(dsn))
}

// LoadMode returns the normalized load mode.
func (d DBConfig) LoadMode() string {
	m := strings.ToLower(strings.TrimSpace(d.Mode))
	if m == "" {
		return "create"
	}
	return m
}

// BatchSizeOrDefault returns the configured batch size or 5000.
func (r RuntimeConfig) BatchSizeOrDefault() int {
	if r.BatchSize <= 0 {
		return 5000
	}
	return r.BatchSize
}
