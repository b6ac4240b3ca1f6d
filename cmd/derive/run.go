package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/derive/internal/config"
	"github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/manifest"
	"github.com/vango-dev/derive/pkg/observe"
)

// scenarioSuffix marks scenario files inside directories.
const scenarioSuffix = ".scenario.yaml"

type runOptions struct {
	metrics  bool
	trace    bool
	parallel int
}

func runCmd(flags *globalFlags) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [scenario files or directories...]",
		Short: "Run scenario files",
		Long: `Run scenario files against their component manifests.

Each scenario builds a fresh component and executes its steps
(attach, set, recompute, detach), checking data values, fired
watchers, evaluated computed properties and error codes.

Directories are searched for *.scenario.yaml files. Without
arguments the scenarios directory from derive.json is used.

Examples:
  derive run
  derive run scenarios/card.scenario.yaml
  derive run --metrics --parallel 4 scenarios/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Enabled = opts.metrics
			}
			if cmd.Flags().Changed("trace") {
				cfg.Trace.Enabled = opts.trace
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runScenarios(ctx, cfg, flags, args, opts.parallel, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print Prometheus metrics after the run")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Print one OpenTelemetry span per settle pass to stderr")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 1, "Number of scenario files run at once")

	return cmd
}

// runScenarios executes every scenario found in args and reports the
// outcome. Metrics are written to out.
func runScenarios(ctx context.Context, cfg *config.Config, flags *globalFlags, args []string, parallel int, out io.Writer) error {
	if len(args) == 0 {
		args = []string{cfg.ScenariosPath()}
	}
	files, err := collectScenarios(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New(errors.CodeCLIArgs).
			WithDetail("No *" + scenarioSuffix + " files in " + strings.Join(args, ", ")).
			WithExample("derive run scenarios/card.scenario.yaml")
	}

	logger := newLogger(cfg, flags, os.Stderr)
	opts := append(cfg.EngineOptions(), derive.WithLogger(logger))

	if cfg.Metrics.Enabled {
		opts = append(opts, derive.WithObserver(observe.Prometheus(
			observe.WithNamespace(cfg.Metrics.Namespace),
		)))
	}

	if cfg.Trace.Enabled {
		tp, err := newTracerProvider(os.Stderr)
		if err != nil {
			return errors.New(errors.CodeCLIFailed).WithSubject("trace").Wrap(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		opts = append(opts, derive.WithObserver(observe.OpenTelemetry(
			observe.WithTracerProvider(tp),
			observe.WithTracerName(cfg.Trace.TracerName),
			observe.WithIncludePaths(cfg.Trace.IncludePaths),
		)))
	}

	results, runErrs := runFiles(ctx, files, parallel, opts)

	failed := 0
	for i, file := range files {
		if err := runErrs[i]; err != nil {
			failed++
			errorMsg("%s", file)
			printError(os.Stderr, err, flags.jsonErrors)
			continue
		}
		res := results[i]
		if res.Passed() {
			success("%s (%d steps)", res.Scenario, len(res.Steps))
			continue
		}
		failed++
		errorMsg("%s", res.Scenario)
		for _, st := range res.Steps {
			if st.Passed() {
				info("✓ %s", st.Name)
				continue
			}
			info("✗ %s", st.Name)
			for _, f := range st.Failures {
				info("    %s", f)
			}
		}
		printError(os.Stderr, res.Err(), flags.jsonErrors)
	}

	if cfg.Metrics.Enabled {
		if err := writeMetrics(out, cfg.Metrics.Namespace); err != nil {
			warn("metrics: %v", err)
		}
	}

	fmt.Println()
	if failed > 0 {
		return errors.New(errors.CodeCLIFailed).
			WithSubject("run").
			WithDetail(fmt.Sprintf("%d of %d scenarios failed", failed, len(files)))
	}
	success("%d scenarios passed", len(files))
	return nil
}

// runFiles runs each file with at most parallel files in flight. Results
// and errors are indexed like files.
func runFiles(ctx context.Context, files []string, parallel int, opts []derive.Option) ([]*manifest.Result, []error) {
	results := make([]*manifest.Result, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	if parallel < 1 {
		parallel = 1
	}
	g.SetLimit(parallel)

	for i, file := range files {
		g.Go(func() error {
			s, err := manifest.LoadScenario(file)
			if err != nil {
				errs[i] = err
				return nil
			}
			res, err := manifest.Run(ctx, s, opts...)
			results[i], errs[i] = res, err
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// collectScenarios expands directories to their scenario files, sorted.
func collectScenarios(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, errors.New(errors.CodeCLIArgs).WithSubject(arg).Wrap(err)
		}
		if !st.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), scenarioSuffix) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.New(errors.CodeCLIArgs).WithSubject(arg).Wrap(err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// newTracerProvider returns an SDK tracer provider exporting spans as JSON.
func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

// writeMetrics writes the derive metric families in the Prometheus text
// format.
func writeMetrics(w io.Writer, namespace string) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
