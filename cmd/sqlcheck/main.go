// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command sqlcheck verifies the SQL queries declared in Go packages against
// a live database and generates typed functions that run them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/canonical/sqlcheck/internal/config"
	"github.com/canonical/sqlcheck/internal/describe"
)

// errDiagnostics is returned when declarations were reported invalid. The
// diagnostics themselves have already been printed.
var errDiagnostics = errors.New("invalid query declarations")

// app holds the state shared by the subcommands.
type app struct {
	verbose     bool
	dir         string
	databaseURL string
	output      string
	concurrency int

	logger *zap.Logger
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "sqlcheck",
		Short: "Compile-time checked SQL for Go",
		Long: `sqlcheck finds the queries declared with the sqlcheck marker functions,
asks the database to describe each of them without running it, checks the
declared arguments and output types, and generates one file per package
with a typed function for every query.

The database is given by database_url in sqlcheck.yaml, DATABASE_URL in the
environment or a .env file, or the --database-url flag.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")
	flags.StringVarP(&a.dir, "dir", "C", ".", "run as if started in `dir`")
	flags.StringVar(&a.databaseURL, "database-url", "", "database to describe queries against")
	flags.StringVar(&a.output, "output", "", "name of the generated file in each package")
	flags.IntVar(&a.concurrency, "concurrency", 0, "number of queries described at once (0 means one per CPU)")

	root.AddCommand(a.generateCmd(), a.checkCmd(), a.describeCmd())
	return root
}

// setup builds the logger and loads the configuration. Flags set on the
// command line override the configuration.
func (a *app) setup(cmd *cobra.Command) error {
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if a.verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("cannot initialize logger: %w", err)
	}
	a.logger = logger

	cfg, err := config.Load(a.dir)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.DatabaseURL = a.databaseURL
	}
	if flags.Changed("output") {
		cfg.Output = a.output
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = a.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("configuration loaded",
		zap.String("dir", a.dir),
		zap.String("output", cfg.Output),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Strings("patterns", cfg.Patterns))
	return nil
}

// openBackend connects to the configured database and applies the
// configured schema files to it.
func openBackend(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) (describe.Backend, error) {
	opts := []describe.Option{describe.WithLogger(logger)}
	for _, path := range cfg.Schema {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read schema: %w", err)
		}
		opts = append(opts, describe.WithSchema(string(content)))
	}
	return describe.Open(ctx, cfg.DatabaseURL, opts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errDiagnostics) {
			fmt.Fprintln(os.Stderr, "sqlcheck:", err)
		}
		os.Exit(1)
	}
}
