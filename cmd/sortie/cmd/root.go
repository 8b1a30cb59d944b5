package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sortie/internal/config"
	"sortie/internal/execution"
	"sortie/internal/hec"
	"sortie/internal/metrics"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitFailed  = 1
	ExitError   = 2
)

// CodeError carries a non-zero exit code for a command that already
// reported its outcome.
type CodeError struct {
	Code int
	Msg  string
}

func (e *CodeError) Error() string { return e.Msg }

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sortie",
		Short: "sortie replays attack scenarios as security telemetry.",
		Long: `sortie replays attack scenarios as security telemetry into an HTTP event collector.

Configuration is read from the YAML file given with --config. Any SORTIE_*
environment variable overrides it, e.g. SORTIE_HEC_URL and SORTIE_HEC_TOKEN
set the collector of the selected destination.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd)
		},
	}

	cmd.PersistentFlags().String("config", "", "path to YAML config file")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	cmd.AddCommand(
		scenariosCmd(),
		timelineCmd(),
		runCmd(),
	)
	return cmd
}

func initLogging(cmd *cobra.Command) error {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(cmd.ErrOrStderr())

	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return err
	}
	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("--log-format must be 'text' or 'json', got %q", format)
	}
	return nil
}

// loadConfig reads the config file, when given, and overlays the
// environment and the flags bound in flagNames.
func loadConfig(cmd *cobra.Command, flagNames map[string]string) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags(), flagNames); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	config.Overlay(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// engineOptions are the optional collaborators of newEngine.
type engineOptions struct {
	debug   *hec.DebugLogger
	metrics *metrics.Metrics
}

func newEngine(cfg *config.Config, opts engineOptions) (*execution.Engine, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	router, err := cfg.Router()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	deps := execution.Deps{
		Catalog:     catalog,
		Router:      router,
		Registry:    reg,
		Credentials: cfg.Credentials(),
		Sender:      hec.NewClient(nil, cfg.Dispatch.Timeout, opts.debug),
		Logger:      logrus.StandardLogger(),
	}
	if opts.metrics != nil {
		deps.StatusObserver = opts.metrics
		deps.Reporter = opts.metrics
		deps.DispatchObserver = opts.metrics
	}
	return execution.NewEngine(deps, cfg.Settings())
}

func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

func checkOutput(output string) error {
	if output != "text" && output != "json" {
		return fmt.Errorf("--output must be 'text' or 'json', got %q", output)
	}
	return nil
}
