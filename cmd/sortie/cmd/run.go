package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sortie/internal/aggregate"
	"sortie/internal/config"
	"sortie/internal/execution"
	"sortie/internal/hec"
	"sortie/internal/metrics"
	"sortie/internal/progress"
)

// runFlags maps overlay keys to the run command's flags.
var runFlags = map[string]string{
	config.KeyConcurrency: "concurrency",
	config.KeyRPS:         "rps",
	config.KeyDestination: "destination",
	config.KeyWindow:      "window",
}

// Run a scenario against the configured collector and report the outcome.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Dispatch a scenario's events to the collector.",
		Long: `Dispatch a scenario's events to the collector and print a report.

The exit code is 0 when the run completed, 1 when it failed and 2 on errors.
Ctrl-C stops the run; events not yet sent are reported as not attempted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			speed, _ := f.GetString("speed")
			dryRun, _ := f.GetBool("dry-run")
			output, _ := f.GetString("output")
			includeEvents, _ := f.GetBool("include-events")
			quiet, _ := f.GetBool("quiet")
			verbose, _ := f.GetBool("verbose")
			metricsAddr, _ := f.GetString("metrics-addr")
			if err := checkOutput(output); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, runFlags)
			if err != nil {
				return err
			}

			var opts engineOptions
			if verbose {
				opts.debug = hec.NewDebugLogger(cmd.ErrOrStderr())
			}
			if metricsAddr != "" {
				m, reg := newMetrics()
				opts.metrics = m
				srv := serveMetrics(metricsAddr, reg)
				defer srv.Close()
			}
			engine, err := newEngine(cfg, opts)
			if err != nil {
				return err
			}

			return runScenario(cmd, engine, args[0], execution.StartOptions{
				Speed:       speed,
				DryRun:      dryRun,
				Destination: cfg.Destination,
			}, runOutput{format: output, includeEvents: includeEvents, quiet: quiet})
		},
	}

	f := cmd.Flags()
	f.String("speed", execution.SpeedFast, "timestamp layout: fast, realtime")
	f.Duration("window", 0, "width of the fast-speed window ending now")
	f.Bool("dry-run", false, "build and encode events without sending them")
	f.String("destination", "", "destination id to send to")
	f.Int("concurrency", 0, "number of concurrent senders")
	f.Int("rps", 0, "cap on events per second (0 = unlimited)")
	f.StringP("output", "o", "text", "output format: text, json")
	f.Bool("include-events", false, "include per-event outcomes in the report")
	f.BoolP("quiet", "q", false, "suppress progress output")
	f.BoolP("verbose", "v", false, "dump every collector request and response")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	return cmd
}

type runOutput struct {
	format        string
	includeEvents bool
	quiet         bool
}

func runScenario(cmd *cobra.Command, engine *execution.Engine, scenarioID string, opts execution.StartOptions, out runOutput) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("shutdown did not finish")
		}
	}()

	id, err := engine.StartExecution(ctx, scenarioID, opts)
	if err != nil {
		return err
	}
	done, err := engine.Done(id)
	if err != nil {
		return err
	}

	prog := progress.NewProgress(engine, id, out.quiet)
	prog.SetOutput(cmd.ErrOrStderr())
	prog.Printf("Sortie starting: scenario %q, speed %s, execution %s", scenarioID, opts.Speed, id)
	prog.Start()

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopSignal)

	select {
	case <-done:
	case <-stopSignal:
		prog.Print("\nReceived interrupt signal, stopping...")
		if _, err := engine.StopExecution(id); err != nil {
			return err
		}
	case <-ctx.Done():
		if _, err := engine.StopExecution(id); err != nil {
			return err
		}
	}
	prog.Stop()

	res, err := engine.GetExecutionResults(id, out.includeEvents)
	if err != nil {
		return err
	}
	header := aggregate.Header{
		ExecutionID: res.ID,
		ScenarioID:  res.ScenarioID,
		Status:      string(res.Status),
		Error:       res.Error,
	}
	if out.format == "json" {
		aggregate.FormatJSON(cmd.OutOrStdout(), header, res.Summary, res.Verdict)
	} else {
		aggregate.FormatText(cmd.OutOrStdout(), header, res.Summary, res.Verdict)
	}

	if res.Status == execution.StatusFailed {
		return &CodeError{Code: ExitFailed, Msg: fmt.Sprintf("execution %s failed: %s", id, res.Error)}
	}
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(g),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("addr", addr).Error("metrics server failed")
		}
	}()
	return srv
}
