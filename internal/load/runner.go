// Package load runs a pipeline end to end: profile the source, design a
// table from the profile, create it on the configured backend, stream the
// rows into it and provision access.
package load

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"csvschema/internal/access"
	"csvschema/internal/config"
	"csvschema/internal/datasource/httpds"
	"csvschema/internal/metrics"
	parsercsv "csvschema/internal/parser/csv"
	"csvschema/internal/profile"
	"csvschema/internal/schema"
	"csvschema/internal/storage"
)

// Result describes a finished run.
type Result struct {
	RunID   string
	Table   storage.TableSpec
	Profile *profile.TableProfile
	Rows    int64
	Batches int
	Access  access.Summary
	Elapsed time.Duration
}

// Runner executes pipelines. The function fields are seams for tests; the
// zero value uses the registered storage backends and the process env.
type Runner struct {
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// HTTPClient is used for http sources. Nil builds one per run.
	HTTPClient *httpds.Client

	Getenv func(string) string
	NewID  func() string
}

// NewDefaultRunner returns a Runner wired to the storage registry.
func NewDefaultRunner() *Runner {
	return &Runner{
		NewRepository: storage.New,
		Getenv:        os.Getenv,
		NewID:         uuid.NewString,
	}
}

func (r *Runner) newRepository(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if r.NewRepository != nil {
		return r.NewRepository(ctx, cfg)
	}
	return storage.New(ctx, cfg)
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Run executes p. Nothing is written to the backend until the profile and
// the table design succeed.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (*Result, error) {
	if issues := config.ValidatePipeline(p); config.HasErrors(issues) {
		return nil, invalidPipeline(issues)
	}

	start := time.Now()
	res := &Result{RunID: r.newID()}

	src, err := SourceFor(p.Source, r.HTTPClient)
	if err != nil {
		return nil, err
	}
	settings := parsercsv.SettingsFrom(p.Parser.Options)

	// 1) Profile.
	t0 := time.Now()
	tp, err := profile.New(profile.Options{Parser: settings}).ScanParallel(ctx, src, p.Profile.Workers)
	metrics.RecordStep("profile", t0, err)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	metrics.RecordRows("profiled", tp.Rows)
	res.Profile = tp
	log.Printf("load: run=%s profiled rows=%d columns=%d in %s",
		res.RunID, tp.Rows, len(tp.Columns), time.Since(t0).Truncate(time.Millisecond))
	if p.Profile.Report {
		log.Printf("load: %s", profile.FormatReport(tp, profile.ReportOptions{MaxValues: 12}))
	}

	// 2) Design.
	t0 = time.Now()
	spec, err := schema.Design(tp, schema.PolicyFrom(p.Job, p.Schema))
	metrics.RecordStep("design", t0, err)
	if err != nil {
		return nil, err
	}
	res.Table = spec

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	// Resolved up front so a missing password fails before any DDL runs.
	plan, err := access.PlanFrom(p.Access, p.Storage.DB.Database, spec.Schema, getenv)
	if err != nil {
		return nil, err
	}

	repo, err := r.newRepository(ctx, storage.Config{
		Kind:     p.Storage.Kind,
		DSN:      config.ExpandDSN(p.Storage.DB.DSN),
		AdminDSN: config.ExpandDSN(p.Storage.DB.AdminDSN),
	})
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", p.Storage.Kind, err)
	}
	defer repo.Close()

	// 3) Prepare the database, schema and target table.
	t0 = time.Now()
	mode := p.Storage.DB.LoadMode()
	target, err := prepare(ctx, repo, p.Storage.DB, spec, mode, res.RunID)
	metrics.RecordStep("ddl", t0, err)
	if err != nil {
		return nil, err
	}

	// 4) Stream rows.
	t0 = time.Now()
	stats, err := streamCopy(ctx, repo, src, settings, tp.Header, target, p.Runtime.BatchSizeOrDefault())
	metrics.RecordStep("copy", t0, err)
	if err != nil {
		if mode == "replace" {
			if derr := repo.DropTable(context.WithoutCancel(ctx), target); derr != nil {
				log.Printf("load: drop staging table %s: %v", target.Qualified(), derr)
			}
		}
		return nil, fmt.Errorf("load %s: %w", spec.Qualified(), err)
	}
	res.Rows, res.Batches = stats.Rows, stats.Batches
	log.Printf("load: copied rows=%d batches=%d into %s in %s",
		stats.Rows, stats.Batches, target.Qualified(), time.Since(t0).Truncate(time.Millisecond))

	if mode == "replace" {
		t0 = time.Now()
		err := swap(ctx, repo, target, spec)
		metrics.RecordStep("swap", t0, err)
		if err != nil {
			return nil, err
		}
	}

	// 5) Access.
	if !plan.Empty() {
		t0 = time.Now()
		sum, err := applyAccess(ctx, repo, plan)
		metrics.RecordStep("access", t0, err)
		if err != nil {
			return nil, err
		}
		res.Access = sum
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// prepare ensures the database, schema and table for mode and returns the
// spec rows are copied into: the target itself, or a staging table for
// replace.
func prepare(ctx context.Context, repo storage.Repository, db config.DBConfig, spec storage.TableSpec, mode, runID string) (storage.TableSpec, error) {
	if db.Database != "" && db.AdminDSN != "" {
		if err := repo.EnsureDatabase(ctx, db.Database); err != nil {
			return spec, fmt.Errorf("ensure database: %w", err)
		}
	}
	if spec.Schema != "" {
		if err := repo.EnsureSchema(ctx, spec.Schema); err != nil {
			return spec, fmt.Errorf("ensure schema: %w", err)
		}
	}

	switch mode {
	case "create":
		if err := repo.EnsureTable(ctx, spec); err != nil {
			return spec, fmt.Errorf("ensure table: %w", err)
		}
		return spec, nil

	case "append":
		ok, err := repo.TableExists(ctx, spec)
		if err != nil {
			return spec, fmt.Errorf("lookup table: %w", err)
		}
		if !ok {
			return spec, fmt.Errorf("append: table %s does not exist", spec.Qualified())
		}
		return spec, nil

	case "replace":
		staging := spec.WithName(stagingName(spec.Name, runID))
		if err := repo.EnsureTable(ctx, staging); err != nil {
			return spec, fmt.Errorf("ensure staging table: %w", err)
		}
		return staging, nil

	default:
		return spec, fmt.Errorf("unsupported load mode %q", mode)
	}
}

// swap replaces spec with the loaded staging table.
func swap(ctx context.Context, repo storage.Repository, staging, spec storage.TableSpec) error {
	if err := repo.DropTable(ctx, spec); err != nil {
		return fmt.Errorf("replace: drop %s: %w", spec.Qualified(), err)
	}
	if err := repo.RenameTable(ctx, staging, spec.Name); err != nil {
		return fmt.Errorf("replace: rename %s to %s: %w", staging.Qualified(), spec.Name, err)
	}
	log.Printf("load: replaced %s", spec.Qualified())
	return nil
}

func applyAccess(ctx context.Context, repo storage.Repository, plan access.Plan) (access.Summary, error) {
	admin, err := storage.AdminOf(repo)
	if err != nil {
		return access.Summary{}, err
	}
	return access.Apply(ctx, admin, plan)
}

// stagingName appends a run-specific suffix to name, trimming name so the
// result fits the identifier limit.
func stagingName(name, runID string) string {
	suffix := strings.ReplaceAll(runID, "-", "")
	if len(suffix) > 12 {
		suffix = suffix[:12]
	}
	suffix = "_stg_" + suffix
	return schema.TruncateName(name[:min(len(name), 63-len(suffix))] + suffix)
}

// ErrInvalidPipeline is returned (wrapped) when validation reports errors.
var ErrInvalidPipeline = errors.New("invalid pipeline")

func invalidPipeline(issues []config.Issue) error {
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidPipeline, strings.Join(msgs, "; "))
}
