package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/koltyakov/formexport/internal/config"
	"github.com/koltyakov/formexport/internal/db"
	"github.com/koltyakov/formexport/internal/job"
	"github.com/koltyakov/formexport/internal/logging"
	"github.com/koltyakov/formexport/internal/metrics"
	"github.com/koltyakov/formexport/internal/state"
	"github.com/koltyakov/formexport/internal/storage"
	"github.com/koltyakov/formexport/pkg/errors"
	"github.com/koltyakov/formexport/pkg/types"
)

var (
	// Version is set at build time
	version = "dev"
	// BuildTime is set at build time
	buildTime = "unknown"
)

// errExportFailed marks a run that started but did not finish
var errExportFailed = stderrors.New("export failed")

var rootCmd = &cobra.Command{
	Use:   "formexport",
	Short: "Form submissions exporter",
	Long: `formexport exports form submissions as CSV, JSON or XLSX, and form codebooks as JSON.
Rows are streamed from the database to a file, stdout or S3 without holding the export in memory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the submissions or the codebook of a form",
	Long: `Export the submissions of a form in the format given by --format.
Use --out - to write to stdout, --s3 to upload to the configured bucket and
--incremental to export only submissions created since the last incremental run.`,
	RunE: runExport,
}

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Print the content type and file name of an export",
	Long:  "Print the content type and file name an export would have, without connecting to the database",
	RunE:  runHeaders,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and column layout",
	Long:  "Validate configuration, paths and the column layout file, and optionally test the database and S3 connections",
	RunE:  runValidate,
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the supported export formats",
	RunE:  runFormats,
}

func init() {
	// Common flags
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a config file (yaml, json or toml)")
	pf.String("db-driver", config.DefaultDBDriver, "Database driver (oracle or sqlite)")
	pf.String("db-dsn", "", "Database connection string; overrides the db-host/db-port/db-service parts")
	pf.String("db-host", config.DefaultDBHost, "Database host")
	pf.Int("db-port", config.DefaultDBPort, "Database port")
	pf.String("db-service", config.DefaultDBService, "Database service name")
	pf.String("db-user", config.DefaultDBUser, "Database user")
	pf.String("storage-host", "", "Blob storage host whose file links are rewritten")
	pf.String("storage-container", "", "Blob storage container holding submission files")
	pf.String("file-access-base", config.DefaultFileAccessBase, "Base of rewritten file links")
	pf.String("output-dir", config.DefaultOutputDir, "Directory for exported files")
	pf.String("format", config.DefaultFormat, "Export format (csv, json, xlsx or codebook)")
	pf.Int("flush-every", config.DefaultFlushEvery, "Rows written between flushes")
	pf.String("columns-file", "", "YAML file with the answer columns to export")
	pf.Bool("strict-names", false, "Fail instead of naming files with an unknown form id")
	pf.String("state-file", config.DefaultStateFile, "Path to state.json file")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	pf.Bool("verbose", false, "Enable verbose logging")
	pf.String("log-level", "", "Log level (error, warn, info, debug or trace); overrides --verbose")
	pf.String("log-file", "", "Also append logs to this file")
	pf.Duration("connect-timeout", config.DefaultConnectTimeoutSecs*time.Second, "Connection timeout")
	pf.Duration("query-timeout", config.DefaultQueryTimeoutSecs*time.Second, "Timeout of a whole export run")
	pf.String("s3-bucket", "", "S3 bucket for uploads")
	pf.String("s3-prefix", "", "S3 key prefix")
	pf.String("s3-endpoint", "", "S3-compatible endpoint such as MinIO")
	pf.String("s3-region", "", "S3 region")

	// Export-specific flags
	exportCmd.Flags().String("form-id", "", "Form to export")
	exportCmd.Flags().String("out", "", "Output file or directory, - for stdout (default: output-dir)")
	exportCmd.Flags().Bool("s3", false, "Upload to the configured S3 bucket")
	exportCmd.Flags().StringSlice("columns", nil, "Export only these columns")
	exportCmd.Flags().Bool("incremental", false, "Export only submissions created since the last incremental run")
	_ = exportCmd.MarkFlagRequired("form-id")

	headersCmd.Flags().String("form-id", "", "Form to export")

	// Validate-specific flags
	validateCmd.Flags().Bool("test-connection", false, "Test database and S3 connections")
}

func main() {
	rootCmd.AddCommand(exportCmd, headersCmd, validateCmd, formatsCmd)

	if err := rootCmd.Execute(); err != nil {
		if stderrors.Is(err, errExportFailed) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(logger *logging.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("Received interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runExport(cmd *cobra.Command, args []string) error {
	// Load configuration from flags, environment and config file
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}

	// Logs go to stderr so that stdout can carry the export
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("Starting formexport v%s (built: %s)", version, buildTime)

	req := job.Request{Format: cfg.Format}
	req.FormID, _ = cmd.Flags().GetString("form-id")
	req.Output, _ = cmd.Flags().GetString("out")
	req.S3, _ = cmd.Flags().GetBool("s3")
	req.Columns, _ = cmd.Flags().GetStringSlice("columns")
	req.Incremental, _ = cmd.Flags().GetBool("incremental")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed: %v", err)
		return err
	}
	if req.Output == "" && !req.S3 {
		if err := cfg.EnsureDirs(); err != nil {
			logger.Error("Failed to create directories: %v", err)
			return err
		}
	}

	layout, err := config.LoadColumns(cfg.ColumnsFile)
	if err != nil {
		logger.Error("Failed to load column layout: %v", err)
		return err
	}

	st, err := state.Load(cfg.StateFile)
	if err != nil {
		logger.Error("Failed to load state file: %v", err)
		return fmt.Errorf("failed to load state file: %w", err)
	}

	var store job.ObjectStore
	if req.S3 {
		if !cfg.S3.Enabled() {
			return fmt.Errorf("--s3 requires s3_bucket to be configured")
		}
		client, err := storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			logger.Error("Failed to create S3 client: %v", err)
			return err
		}
		store = client
		logger.Info("Uploading to S3 bucket: %s", client.Bucket())
	}

	recorder := metrics.New()
	if cfg.MetricsAddr != "" {
		addr, _, err := recorder.Serve(ctx, cfg.MetricsAddr, logger.WithPrefix("metrics").StdLogger())
		if err != nil {
			logger.Error("Failed to start metrics listener: %v", err)
			return err
		}
		logger.Info("Serving metrics on http://%s/metrics", addr)
	}

	// Connect to database
	logger.Info("Connecting to %s database", cfg.DBDriver)
	database, err := db.Open(ctx, db.Config{Driver: cfg.DBDriver, DSN: cfg.DSN(), ConnectTimeout: cfg.ConnectTimeout})
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		return err
	}
	defer database.Close()
	logger.Info("Database connection established")

	runner, err := job.New(cfg, layout, job.Deps{
		DB:      database,
		State:   st,
		Metrics: recorder,
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Failed to prepare export: %v", err)
		return err
	}

	result := runner.Run(ctx, req)
	printSummary(result, logger)

	if !result.Success() {
		return fmt.Errorf("%w: %v", errExportFailed, result.Err)
	}
	return nil
}

func runHeaders(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	runner, err := newOfflineRunner(cfg)
	if err != nil {
		return err
	}

	formID, _ := cmd.Flags().GetString("form-id")
	h, err := runner.Headers(job.Request{FormID: formID, Format: cfg.Format})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Content-Type: %s\n", h.ContentType)
	fmt.Fprintf(cmd.OutOrStdout(), "File-Name: %s\n", h.FileName)
	return nil
}

func runFormats(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	runner, err := newOfflineRunner(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FORMAT\tCONTENT TYPE")
	for _, f := range runner.Formats() {
		fmt.Fprintf(w, "%s\t%s\n", f.Format, f.ContentType)
	}
	return w.Flush()
}

// newOfflineRunner builds a runner that can resolve headers but not export
func newOfflineRunner(cfg *config.Config) (*job.Runner, error) {
	layout, err := config.LoadColumns(cfg.ColumnsFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Verbose)
	return job.New(cfg, layout, job.Deps{Logger: logger})
}

// newLogger honours log_level and log_file, falling back to verbose
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.LevelInfo
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	if cfg.LogLevel != "" {
		var err error
		if level, err = logging.ParseLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	if cfg.LogFile != "" {
		return logging.NewWithFile(cfg.LogFile, level)
	}
	return logging.NewWithWriter(os.Stderr, level), nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("Validating formexport configuration")

	if err := cfg.Validate(); err != nil {
		logger.Error("Validation failed: %v", err)
		return err
	}
	if err := cfg.ValidatePaths(); err != nil {
		logger.Error("Validation failed: %v", err)
		return err
	}
	logger.Info("Configuration validation: OK")

	layout, err := config.LoadColumns(cfg.ColumnsFile)
	if err != nil {
		logger.Error("Column layout validation failed: %v", err)
		return err
	}
	if _, err := job.New(cfg, layout, job.Deps{Logger: logger}); err != nil {
		logger.Error("Column layout validation failed: %v", err)
		return err
	}
	logger.Info("Column layout: OK (%d answer columns)", len(layout))

	st, err := state.Load(cfg.StateFile)
	if err != nil {
		logger.Error("Failed to load state file: %v", err)
		return fmt.Errorf("failed to load state file: %w", err)
	}
	logger.Info("State file: OK (%d forms)", st.Count())

	testConn, _ := cmd.Flags().GetBool("test-connection")
	if !testConn {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	database, err := db.Open(ctx, db.Config{Driver: cfg.DBDriver, DSN: cfg.DSN(), ConnectTimeout: cfg.ConnectTimeout})
	if err != nil {
		logger.Error("Database connection failed: %v", err)
		return err
	}
	defer database.Close()
	logger.Info("Database connection: OK")

	if cfg.S3.Enabled() {
		client, err := storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			logger.Error("Failed to create S3 client: %v", err)
			return err
		}
		if err := client.CheckConnection(ctx); err != nil {
			logger.Error("%v", err)
			return err
		}
		logger.Info("S3 connection: OK (bucket %s)", client.Bucket())
	}

	return nil
}

func printSummary(result *types.RunResult, logger *logging.Logger) {
	duration := result.Duration
	minutes := int(duration.Minutes())
	seconds := int(duration.Seconds()) % 60

	logger.Info("==================================================")
	switch {
	case result.Success():
		logger.Info("Export completed successfully")
	case errors.IsCancelled(result.Err):
		logger.Error("Export cancelled: %v", result.Err)
	default:
		logger.Error("Export failed: %v", result.Err)
	}
	logger.Info("Run: %s", result.RunID)
	logger.Info("Form: %s (%s)", result.FormID, result.Format)
	logger.Info("Total duration: %dm %ds", minutes, seconds)
	logger.Info("Rows: %d, bytes: %d", result.Rows, result.Bytes)
	if result.Destination != "" {
		logger.Info("Destination: %s", result.Destination)
	}
	logger.Info("==================================================")
}
