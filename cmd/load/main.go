// Command load profiles a delimited file, creates a table shaped by the
// profile and loads the rows into it, as described by a pipeline config.
//
// Usage:
//
//	load -config configs/pipelines/boston_crimes.json [-validate] [-dsn DSN]
//	     [-metrics-backend none|datadog] [-v]
//
// The storage DSN in the config may be overridden with -dsn, the DSN env var
// or the DSN_* component vars (see resolveDSNOverride).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"csvschema/internal/config"
	"csvschema/internal/load"
	"csvschema/internal/logging"
	"csvschema/internal/metrics"
	"csvschema/internal/metrics/datadog"

	// register all backends with the storage factory.
	_ "csvschema/internal/storage/all"
)

// runner is the part of *load.Runner the command uses.
type runner interface {
	Run(ctx context.Context, p config.Pipeline) (*load.Result, error)
}

// metricsBackend is a metrics.Backend that must be closed to flush.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// appDeps are the side-effecting operations of runMain.
type appDeps struct {
	readFile     func(string) ([]byte, error)
	unmarshal    func([]byte, any) error
	getenv       func(string) string
	newRunner    func() runner
	initMetrics  func(ctx context.Context, jobName, backendName string) (func(), error)
	setupLogging func(verbose bool, w io.Writer) func()
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:    os.ReadFile,
		unmarshal:   json.Unmarshal,
		getenv:      os.Getenv,
		newRunner:   func() runner { return load.NewDefaultRunner() },
		initMetrics: initMetrics,
		setupLogging: func(verbose bool, w io.Writer) func() {
			_, cleanup := logging.Setup(logging.Options{Verbose: verbose, Output: w})
			return cleanup
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 success, 1 failure, 2 usage.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath    = fs.String("config", "", "pipeline config JSON path")
		validate   = fs.Bool("validate", false, "validate the configuration and exit")
		backendFlg = fs.String("metrics-backend", "", "metrics backend: none|datadog (default $METRICS_BACKEND)")
		dsnFlg     = fs.String("dsn", "", "override storage.db.dsn (highest priority)")
		verbose    = fs.Bool("v", false, "enable verbose logs")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*cfgPath) == "" {
		fmt.Fprintln(stderr, "usage: load -config path/to/pipeline.json")
		return 2
	}

	raw, err := deps.readFile(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	var p config.Pipeline
	if err := deps.unmarshal(raw, &p); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}

	dsn, ok, err := resolveDSNOverride(p.Storage.Kind, strings.TrimSpace(*dsnFlg), deps.getenv)
	if err != nil {
		fmt.Fprintf(stderr, "dsn override: %v\n", err)
		return 1
	}
	if ok {
		p.Storage.DB.DSN = dsn
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", *cfgPath)
		return 1
	}
	if *validate {
		fmt.Fprintf(stdout, "configuration is valid: %s\n", *cfgPath)
		return 0
	}

	closeLogs := deps.setupLogging(*verbose, stderr)
	defer closeLogs()

	backendName := *backendFlg
	if backendName == "" {
		backendName = deps.getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, p.Job, backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if *verbose {
		log.Printf("pipeline: job=%s source=%s storage=%s mode=%s",
			p.Job, p.Source.Kind, p.Storage.Kind, p.Storage.DB.LoadMode())
	}

	res, err := deps.newRunner().Run(ctx, p)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "ok\ttable=%s\trows=%d\telapsed=%s\n",
		res.Table.Qualified(), res.Rows, res.Elapsed.Truncate(time.Millisecond))
	return 0
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b metrics.Backend) { metrics.SetBackend(b) }
	logPrintf         = log.Printf
)

// initMetrics installs the named backend. The returned cleanup is never nil
// and flushes the backend.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	nop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "nop", "noop":
		return nop, nil

	case "datadog", "dd":
		if jobName == "" {
			jobName = "csvschema"
		}
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nop, err
		}
		setMetricsBackend(b)
		logPrintf("metrics: backend=datadog job_name=%s tags=%v", jobName, tags)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
