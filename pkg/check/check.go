// Package check runs the built-in check suite. Every case boots its own
// machine, so cases run side by side on a worker pool.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-hclog"

	"kernos/pkg/config"
	"kernos/pkg/kernel"
	"kernos/pkg/logging"
	"kernos/pkg/programs"
	"kernos/pkg/ulib"
)

// DefaultTimeout bounds one case.
const DefaultTimeout = 10 * time.Second

// Result is the outcome of one case.
type Result struct {
	Case     programs.Case
	Output   string
	Status   int
	Halted   bool
	Err      error
	Duration time.Duration
}

// Passed reports whether the case matched.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Runner runs check cases.
type Runner struct {
	cfg      *config.Config
	programs *ulib.Registry
	log      hclog.Logger
	timeout  time.Duration
}

// NewRunner creates a runner. Each case gets a copy of cfg with its own
// in-memory disk.
func NewRunner(cfg *config.Config, registry *ulib.Registry, log hclog.Logger) *Runner {
	if cfg == nil {
		cfg = config.New()
	}
	if registry == nil {
		registry = programs.Registry()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{
		cfg:      cfg,
		programs: registry,
		log:      log,
		timeout:  DefaultTimeout,
	}
}

// SetTimeout changes the per-case deadline.
func (r *Runner) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Run runs cases on a pool of cfg.CheckWorkers workers and returns their
// results in the order given.
func (r *Runner) Run(ctx context.Context, cases []programs.Case) []Result {
	workers := r.cfg.CheckWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(cases))
	wp := workerpool.New(workers)
	for i, c := range cases {
		wp.Submit(func() {
			results[i] = r.RunCase(ctx, c)
		})
	}
	wp.StopWait()

	return results
}

// RunCase boots a machine, runs one case on it and verifies the outcome.
func (r *Runner) RunCase(ctx context.Context, c programs.Case) (res Result) {
	start := time.Now()
	res = Result{Case: c, Status: -1}
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			r.log.Debug("case failed", "case", c.Name, "error", res.Err)
		}
	}()

	cfg := *r.cfg
	cfg.PrintExitStatus = true
	cfg.DiskDir = ""
	cfg.Files = mergeFiles(r.cfg.Files, c.Files)

	m, err := kernel.New(&cfg, r.programs,
		kernel.WithKeyboard(strings.NewReader(c.Input)),
		kernel.WithLogger(r.log.With("case", c.Name)),
	)
	if err != nil {
		res.Err = fmt.Errorf("failed to boot: %w", err)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, err := m.Run(runCtx, c.CmdLine)
	res.Status = status
	res.Halted = errors.Is(err, kernel.ErrHalted)
	if err != nil && !res.Halted {
		res.Err = fmt.Errorf("run %q: %w", c.CmdLine, err)
	}

	if serr := m.Shutdown(runCtx); serr != nil && res.Err == nil {
		res.Err = fmt.Errorf("shutdown: %w", serr)
	}

	res.Output = m.Console().String()
	if res.Err == nil {
		res.Err = c.Verify(res.Output, res.Status, res.Halted, m.FileSystem())
	}
	return res
}

// mergeFiles returns base with extra appended. A file in extra replaces
// one of the same name in base.
func mergeFiles(base, extra []config.FileConfig) []config.FileConfig {
	override := make(map[string]bool, len(extra))
	for _, f := range extra {
		override[f.Name] = true
	}

	out := make([]config.FileConfig, 0, len(base)+len(extra))
	for _, f := range base {
		if !override[f.Name] {
			out = append(out, f)
		}
	}
	return append(out, extra...)
}

// Summary counts results.
type Summary struct {
	Passed int
	Failed int
}

// Summarize counts passed and failed results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// Report writes one line per result and the failure details to w.
func Report(w io.Writer, results []Result, verbose bool) Summary {
	for _, r := range results {
		if r.Passed() {
			if verbose {
				fmt.Fprintf(w, "pass %s (%s)\n", r.Case.Name, r.Duration.Round(time.Millisecond))
			}
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n%v\n", r.Case.Name, r.Err)
	}

	s := Summarize(results)
	fmt.Fprintf(w, "%d of %d checks passed\n", s.Passed, s.Passed+s.Failed)
	return s
}
