package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/aidalloc/internal/config"
	"github.com/aristath/aidalloc/internal/database"
	"github.com/aristath/aidalloc/internal/dataset"
	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/metrics"
	"github.com/aristath/aidalloc/internal/report"
	"github.com/aristath/aidalloc/pkg/logger"
)

type rootOptions struct {
	configFile  string
	dataPath    string
	dataFormat  string
	sqliteTable string
	logLevel    string
	pretty      bool
	output      string
	metricsFile string
}

// app carries what every subcommand needs once configuration is resolved.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	recorder *metrics.Recorder
	out      io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "aidalloc",
		Short: "Allocate retention funding across institutions",
		Long: "aidalloc distributes a fixed budget across institutions, either as discrete\n" +
			"investment tiers chosen by integer optimization or as continuous formula\n" +
			"strategies, and compares strategies by expected graduates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "YAML configuration file (overrides AIDALLOC_CONFIG_FILE)")
	f.StringVar(&opts.dataPath, "data", "", "Institution dataset: CSV file or SQLite database")
	f.StringVar(&opts.dataFormat, "data-format", "", "Dataset format: csv or sqlite (default: from extension)")
	f.StringVar(&opts.sqliteTable, "sqlite-table", "", "Table holding institutions in a SQLite dataset")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs")
	f.StringVarP(&opts.output, "format", "o", "", "Output format: json or msgpack")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	cmd.AddCommand(newDiscreteCmd(opts))
	cmd.AddCommand(newStrategyCmd(opts))
	cmd.AddCommand(newCompareCmd(opts))
	return cmd
}

// setup loads configuration, applies the flags that were set on the command
// line and builds the logger and metrics recorder.
func (o *rootOptions) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("config") {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}
	if flags.Changed("data") {
		cfg.Data.Path = o.dataPath
	}
	if flags.Changed("data-format") {
		cfg.Data.Format = o.dataFormat
	}
	if flags.Changed("sqlite-table") {
		cfg.Data.SQLiteTable = o.sqliteTable
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("pretty") {
		cfg.LogPretty = o.pretty
	}
	if flags.Changed("format") {
		cfg.Output = o.output
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	logger.SetGlobalLogger(log)

	return &app{
		cfg:      cfg,
		log:      log,
		recorder: metrics.NewRecorder(),
		out:      cmd.OutOrStdout(),
	}, nil
}

// loadDataset reads the configured institution dataset.
func (a *app) loadDataset(cmd *cobra.Command) (*dataset.Dataset, error) {
	if a.cfg.Data.Path == "" {
		return nil, domain.NewConfigurationError("data_path", "no dataset given; use --data or AIDALLOC_DATA_PATH")
	}
	ctx := cmd.Context()

	switch a.cfg.DataFormat() {
	case config.FormatSQLite:
		db, err := database.New(database.Config{
			Path: a.cfg.Data.Path,
			Name: "institutions",
		})
		if err != nil {
			return nil, err
		}
		defer db.Close()

		src, err := dataset.NewSQLiteSource(db, a.cfg.Data.SQLiteTable, a.log)
		if err != nil {
			return nil, err
		}
		return dataset.Load(ctx, src, a.log)
	default:
		return dataset.Load(ctx, dataset.NewCSVSource(a.cfg.Data.Path, a.log), a.log)
	}
}

// emit writes v in the configured format and flushes metrics.
func (a *app) emit(v interface{}) error {
	enc, err := report.NewEncoder(a.cfg.Output)
	if err != nil {
		return err
	}
	if err := enc.Encode(a.out, v); err != nil {
		return err
	}
	if err := a.recorder.WriteFile(a.cfg.MetricsFile); err != nil {
		a.log.Warn().Err(err).Msg("Failed to write metrics")
	}
	return nil
}

// statusError reports a run that ended without a usable allocation. The
// result has already been written when it is returned.
type statusError struct {
	status  domain.Status
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("run finished with status %s", e.status)
	}
	return fmt.Sprintf("run finished with status %s: %s", e.status, e.message)
}

// checkStatus turns unusable statuses into a statusError.
func checkStatus(status domain.Status, message string) error {
	switch status {
	case domain.StatusOptimal, domain.StatusFeasible:
		return nil
	default:
		return &statusError{status: status, message: message}
	}
}
