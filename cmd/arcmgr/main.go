package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bamsammich/arcmgr/internal/config"
	"github.com/bamsammich/arcmgr/internal/inventory"
	"github.com/bamsammich/arcmgr/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	catalog     string
	archive     string
	configFile  string
	logFile     string
	reportDir   string
	metricsFile string
	workers     int
	verbose     bool
	quiet       bool
	tui         bool
	noProgress  bool

	cfg     config.Config
	logSink io.Closer
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string) int {
	opts := &rootOptions{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if opts.logSink != nil {
		opts.logSink.Close()
	}
	return exitCode(opts.stderr, err)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:   "arcmgr",
		Short: "Reconcile, migrate and delete archive files against their catalog",
		Long: `arcmgr keeps an archive tree on disk consistent with the catalog that records
every file's scope, path, size and checksum.

  compare   report discrepancies between the catalog and disk
  migrate   move scopes to a new relative path, rolling back on any failure
  delete    remove JUNK scopes (or one file type) from disk and catalog`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(opts.stdout, "arcmgr %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.SetIn(opts.stdin)
	rootCmd.SetOut(opts.stdout)
	rootCmd.SetErr(opts.stderr)

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.catalog, "catalog", "", "catalog database path (env "+config.EnvCatalog+")")
	pf.StringVar(&opts.archive, "archive", "", "archive name in the catalog")
	pf.StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/arcmgr/config.toml)")
	pf.IntVarP(&opts.workers, "workers", "n", 0, "number of scopes processed in parallel (default: min(NumCPU, 4), max 16)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&opts.logFile, "log", "", "write a structured JSON log to FILE (rotated)")
	pf.StringVar(&opts.reportDir, "report-dir", ".", "directory for .badperm, .undel and .err files")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "write run counters in Prometheus text format to FILE")
	pf.BoolVar(&opts.tui, "tui", false, "full-screen TUI (Bubble Tea)")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "disable progress display")

	rootCmd.AddCommand(newCompareCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newDeleteCmd(opts))
	rootCmd.AddCommand(newCatalogCmd(opts))
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

// setup loads the config file, fills in defaults for flags the user did not
// set, and installs the process logger.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	var err error
	if o.configFile != "" {
		o.cfg, err = config.LoadFile(o.configFile)
	} else {
		o.cfg, err = config.Load()
	}
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	o.applyConfigDefaults(cmd)

	if o.workers <= 0 {
		o.workers = min(runtime.NumCPU(), 4)
	}
	return o.setupLogging()
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func (o *rootOptions) applyConfigDefaults(cmd *cobra.Command) {
	d := o.cfg.Defaults
	flags := cmd.Flags()
	if !flags.Changed("catalog") && d.Catalog != nil {
		o.catalog = *d.Catalog
	}
	if !flags.Changed("archive") && d.Archive != nil {
		o.archive = *d.Archive
	}
	if !flags.Changed("workers") && d.Workers != nil {
		o.workers = *d.Workers
	}
	if !flags.Changed("report-dir") && d.ReportDir != nil {
		o.reportDir = config.ExpandHome(*d.ReportDir)
	}
	if !flags.Changed("tui") && d.TUI != nil {
		o.tui = *d.TUI
	}
}

func (o *rootOptions) setupLogging() error {
	logLevel := slog.LevelWarn
	if o.verbose {
		logLevel = slog.LevelDebug
	} else if !o.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(o.stderr, &slog.HandlerOptions{Level: logLevel})

	var logHandler slog.Handler = textHandler
	if o.logFile != "" {
		maxSize := 100
		if o.cfg.Defaults.LogMaxSizeMB != nil {
			maxSize = *o.cfg.Defaults.LogMaxSizeMB
		}
		lj := &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    maxSize,
			MaxBackups: 3,
		}
		o.logSink = lj
		jsonHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return nil
}

// requireCatalog checks the settings every catalog-backed command needs.
func (o *rootOptions) requireCatalog() error {
	if o.catalog == "" {
		return &usageError{msg: "no catalog: set --catalog, " + config.EnvCatalog + " or defaults.catalog"}
	}
	if o.archive == "" {
		return &usageError{msg: "no archive: set --archive or defaults.archive"}
	}
	return nil
}

// stringDefault copies a config default into dst unless the flag was set.
func stringDefault(cmd *cobra.Command, name string, dst, def *string) {
	if def != nil && !cmd.Flags().Changed(name) {
		*dst = *def
	}
}

// algoFlag is a pflag.Value restricted to the supported checksum algorithms.
type algoFlag struct {
	algo inventory.Algorithm
}

var _ pflag.Value = (*algoFlag)(nil)

func (f *algoFlag) String() string { return string(f.algo) }
func (*algoFlag) Type() string     { return "algorithm" }

func (f *algoFlag) Set(val string) error {
	a, err := inventory.ParseAlgorithm(val)
	if err != nil {
		return err
	}
	f.algo = a
	return nil
}

// usageError is a configuration mistake reported before any work starts.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// exitCode maps a command error onto the process exit status: 1 for scope
// failures and discrepancies, 2 for everything that stopped the run before
// it started.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 2
}
