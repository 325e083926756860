package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"csvschema/internal/config"
	"csvschema/internal/load"
	"csvschema/internal/metrics"
	"csvschema/internal/metrics/datadog"
	"csvschema/internal/storage"
)

// fakeRunner records the pipelines it receives.
type fakeRunner struct {
	err   error
	calls atomic.Int64

	mu      sync.Mutex
	lastCfg config.Pipeline
}

func (r *fakeRunner) Run(ctx context.Context, cfg config.Pipeline) (*load.Result, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastCfg = cfg
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &load.Result{
		Table: storage.TableSpec{Schema: "crimes", Name: "boston_crimes"},
		Rows:  5,
	}, nil
}

// fakeMetricsBackend counts Close calls.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels)       {}
func (b *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeMetricsBackend) Flush() error                                     { return nil }
func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

const validPipeline = `{
  "job": "boston_crimes",
  "source": {"kind": "file", "file": {"path": "crimes.csv"}},
  "parser": {"kind": "csv"},
  "schema": {"name": "crimes"},
  "storage": {"kind": "postgres", "db": {"dsn": "postgres://loader@db/crimes"}}
}`

func noEnv(string) string { return "" }

func nopLogging(bool, io.Writer) func() { return func() {} }

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{name: "missing_config_flag", args: []string{}, wantStderrSub: "usage: load -config"},
		{name: "empty_config_value", args: []string{"-config", "   "}, wantStderrSub: "usage: load -config"},
		{name: "unknown_flag_is_usage_error", args: []string{"-nope"}, wantStderrSub: "flag provided but not defined"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, appDeps{
				readFile: func(string) ([]byte, error) {
					t.Fatalf("readFile must not be called on usage errors")
					return nil, nil
				},
				newRunner: func() runner {
					t.Fatalf("newRunner must not be called on usage errors")
					return nil
				},
			})

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_FullFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		readErr          error
		data             string
		initMetricsErr   error
		runErr           error
		wantCode         int
		wantStderrSub    string
		wantStdout       string
		wantRunnerCalls  int64
		wantCleanupCalls int64
	}{
		{name: "read_config_error", readErr: errors.New("no such file"), wantCode: 1, wantStderrSub: "read config:"},
		{name: "parse_config_error", data: `{"job":`, wantCode: 1, wantStderrSub: "parse config:"},
		{name: "invalid_config", data: `{"job":"x"}`, wantCode: 1, wantStderrSub: "configuration is invalid"},
		{name: "init_metrics_error", data: validPipeline, initMetricsErr: errors.New("metrics unavailable"), wantCode: 1, wantStderrSub: "init metrics:"},
		{name: "runner_error_runs_cleanup", data: validPipeline, runErr: errors.New("db failed"), wantCode: 1, wantStderrSub: "run: db failed", wantRunnerCalls: 1, wantCleanupCalls: 1},
		{name: "success", data: validPipeline, wantCode: 0, wantStdout: "ok\ttable=crimes.boston_crimes\trows=5\telapsed=0s\n", wantRunnerCalls: 1, wantCleanupCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			fr := &fakeRunner{err: tc.runErr}
			var cleanupCalls atomic.Int64

			deps := appDeps{
				readFile: func(path string) ([]byte, error) {
					if path != "cfg.json" {
						t.Fatalf("readFile path=%q, want cfg.json", path)
					}
					return []byte(tc.data), tc.readErr
				},
				unmarshal: defaultDeps().unmarshal,
				getenv:    noEnv,
				initMetrics: func(_ context.Context, jobName, backendName string) (func(), error) {
					if jobName != "boston_crimes" || backendName != "none" {
						t.Fatalf("initMetrics(%q, %q)", jobName, backendName)
					}
					if tc.initMetricsErr != nil {
						return func() {}, tc.initMetricsErr
					}
					return func() { cleanupCalls.Add(1) }, nil
				},
				newRunner:    func() runner { return fr },
				setupLogging: nopLogging,
			}

			code := runMain(context.Background(),
				[]string{"-config", "cfg.json", "-metrics-backend", "none"}, &stdout, &stderr, deps)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if got := stdout.String(); got != tc.wantStdout {
				t.Fatalf("stdout=%q, want %q", got, tc.wantStdout)
			}
			if got := fr.calls.Load(); got != tc.wantRunnerCalls {
				t.Fatalf("runner calls=%d, want %d", got, tc.wantRunnerCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
		})
	}
}

func TestRunMain_ValidateOnly(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-config", "cfg.json", "-validate"}, &stdout, &stderr, appDeps{
		readFile:  func(string) ([]byte, error) { return []byte(validPipeline), nil },
		unmarshal: defaultDeps().unmarshal,
		getenv:    noEnv,
		newRunner: func() runner {
			t.Fatalf("newRunner must not be called with -validate")
			return nil
		},
	})
	if code != 0 || !strings.Contains(stdout.String(), "configuration is valid: cfg.json") {
		t.Fatalf("code=%d stdout=%q stderr=%q", code, stdout.String(), stderr.String())
	}
}

func TestRunMain_DSNOverride(t *testing.T) {
	t.Parallel()

	env := map[string]string{"DSN": "postgres://env@db/crimes"}
	run := func(args ...string) config.Pipeline {
		fr := &fakeRunner{}
		var stdout, stderr bytes.Buffer
		code := runMain(context.Background(), append([]string{"-config", "cfg.json"}, args...), &stdout, &stderr, appDeps{
			readFile:     func(string) ([]byte, error) { return []byte(validPipeline), nil },
			unmarshal:    defaultDeps().unmarshal,
			getenv:       func(k string) string { return env[k] },
			initMetrics:  func(context.Context, string, string) (func(), error) { return func() {}, nil },
			newRunner:    func() runner { return fr },
			setupLogging: nopLogging,
		})
		if code != 0 {
			t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
		}
		return fr.lastCfg
	}

	if got := run().Storage.DB.DSN; got != "postgres://env@db/crimes" {
		t.Fatalf("env DSN not applied: %q", got)
	}
	if got := run("-dsn", "postgres://flag@db/crimes").Storage.DB.DSN; got != "postgres://flag@db/crimes" {
		t.Fatalf("flag DSN not applied: %q", got)
	}
}

func TestRunMain_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "crimes.csv")
	data := "INCIDENT_NUMBER,DAY_OF_WEEK,OFFENSE_CODE\nI1,Monday,619\nI2,Sunday,1402\nI3,Monday,619\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	cfg := fmt.Sprintf(`{
  "job": "boston_crimes",
  "source": {"kind": "file", "file": {"path": %q}},
  "parser": {"kind": "csv", "options": {"comma": ","}},
  "profile": {"workers": 2, "report": true},
  "schema": {"enum_columns": ["DAY_OF_WEEK"], "primary_key": "INCIDENT_NUMBER"},
  "storage": {"kind": "sqlite", "db": {"dsn": %q, "mode": "replace"}},
  "runtime": {"batch_size": 2}
}`, csvPath, filepath.Join(dir, "crimes.db"))
	cfgPath := filepath.Join(dir, "pipeline.json")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	deps := defaultDeps()
	deps.getenv = noEnv
	deps.setupLogging = nopLogging

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-config", cfgPath, "-metrics-backend", "none"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "ok\ttable=boston_crimes\trows=3\t") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

// The tests below swap package-level seams and therefore do not run in
// parallel.

func TestInitMetrics_None(t *testing.T) {
	oldSet := setMetricsBackend
	defer func() { setMetricsBackend = oldSet }()
	setMetricsBackend = func(metrics.Backend) {
		t.Fatalf("setMetricsBackend must not be called for none")
	}

	for _, name := range []string{"", "none", "noop"} {
		cleanup, err := initMetrics(context.Background(), "job", name)
		if err != nil || cleanup == nil {
			t.Fatalf("initMetrics(%q) = %v, %v", name, cleanup, err)
		}
		cleanup()
	}
}

func TestInitMetrics_Datadog_WiresBackendAndCloses(t *testing.T) {
	b := &fakeMetricsBackend{}

	var (
		newCalls int
		set      []metrics.Backend
		gotOpts  datadog.Options
		logged   bytes.Buffer
	)
	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	defer func() { newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog }()

	newDatadogBackend = func(_ context.Context, opts datadog.Options) (metricsBackend, error) {
		newCalls++
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(mb metrics.Backend) { set = append(set, mb) }
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	cleanup, err := initMetrics(context.Background(), "jobA", "datadog")
	if err != nil {
		t.Fatalf("initMetrics err=%v", err)
	}
	if gotOpts.JobName != "jobA" || newCalls != 1 {
		t.Fatalf("opts=%+v calls=%d", gotOpts, newCalls)
	}
	if len(set) != 1 || set[0] != b {
		t.Fatalf("backend not installed: %v", set)
	}

	logged.Reset()
	cleanup()
	if b.closed.Load() != 1 {
		t.Fatalf("backend closed=%d, want 1", b.closed.Load())
	}
	if len(set) != 2 || set[1] != nil {
		t.Fatalf("cleanup did not restore the nop backend: %v", set)
	}
	if logged.Len() != 0 {
		t.Fatalf("unexpected log output on clean close: %q", logged.String())
	}
}

func TestInitMetrics_Datadog_CloseErrorIsLogged(t *testing.T) {
	b := &fakeMetricsBackend{closeErr: errors.New("flush failed")}

	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	defer func() { newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog }()

	newDatadogBackend = func(context.Context, datadog.Options) (metricsBackend, error) { return b, nil }
	setMetricsBackend = func(metrics.Backend) {}
	var logged bytes.Buffer
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	cleanup, err := initMetrics(context.Background(), "job", "dd")
	if err != nil {
		t.Fatalf("initMetrics err=%v", err)
	}
	cleanup()

	if !strings.Contains(logged.String(), "metrics: datadog close error: flush failed") {
		t.Fatalf("log=%q", logged.String())
	}
}

func TestInitMetrics_UnknownBackendErrors(t *testing.T) {
	cleanup, err := initMetrics(context.Background(), "job", "pushgateway")
	if err == nil || !strings.Contains(err.Error(), "none|datadog") {
		t.Fatalf("initMetrics err=%v", err)
	}
	cleanup()
}
