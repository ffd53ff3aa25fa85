// Command sqlbulkimport runs one import profile against a SQL Server
// database: it streams a delimited or XML source file through staging,
// update, and merge phases, per SPEC_FULL.md §6. Flag parsing follows the
// cobra tree MacroPower-x's cmd/magicschema/main.go uses; signal-driven
// graceful cancellation is adapted from
// mdzesseis-log_capturer_go/internal/app/app.go's Run method.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/executor"
	"github.com/etylermoss/sql-bulk-import-profile/internal/metrics"
	"github.com/etylermoss/sql-bulk-import-profile/internal/mssqldriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/etylermoss/sql-bulk-import-profile/internal/runtimeconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	connectionString        string
	profilePath             string
	pathOverride            string
	deletion                string
	noMerge                 bool
	noDrop                  bool
	noDuplicateOptimization bool
	logLevel                string
	metricsAddr             string
	configPath              string
}

func main() {
	var opts cliOptions

	rootCmd := &cobra.Command{
		Use:           "sqlbulkimport [flags] <profile.json>",
		Short:         "Bulk-import a delimited or XML source file into SQL Server per an import profile",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.noMerge && !opts.noDrop {
				return apperr.New(apperr.CodeCLIValidation, "cli", "PreRunE", "--no-merge requires --no-drop")
			}
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			opts.profilePath = args[0]
			return run(opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.connectionString, "connection-string", "", "SQL Server connection string (or SBIP_CONNECTION_STRING)")
	flags.StringVar(&opts.pathOverride, "path-override", "", "override the data source path named in the profile")
	flags.StringVar(&opts.deletion, "deletion", "", "what to do with the source file after a successful run: retain|delete")
	flags.BoolVar(&opts.noMerge, "no-merge", false, "skip the final MERGE phase (requires --no-drop)")
	flags.BoolVar(&opts.noDrop, "no-drop", false, "leave the staging table in place after the run")
	flags.BoolVar(&opts.noDuplicateOptimization, "no-duplicate-optimization", false, "disable column-graph duplicate-node collapsing")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve /metrics and /health on (default: disabled)")
	flags.StringVar(&opts.configPath, "config", "", "path to an optional YAML tool-defaults file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(opts cliOptions) error {
	defaults, err := runtimeconfig.Load(opts.configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(resolveLogLevel(opts.logLevel, defaults.LogLevel))
	if defaults.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	connectionString := opts.connectionString
	if connectionString == "" {
		connectionString = os.Getenv("SBIP_CONNECTION_STRING")
	}
	if connectionString == "" {
		return apperr.New(apperr.CodeCLIValidation, "cli", "run", "connection string must be set via --connection-string or SBIP_CONNECTION_STRING")
	}

	deletion := defaults.Deletion
	if opts.deletion != "" {
		parsed, err := parseDeletionFlag(opts.deletion)
		if err != nil {
			return err
		}
		deletion = parsed
	}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = defaults.MetricsAddr
	}
	var metricsServer *metrics.Server
	if metricsAddr != "" {
		metricsServer = metrics.NewServer(metricsAddr, log)
		metricsServer.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, cancelling import")
		cancel()
	}()

	data, err := os.ReadFile(opts.profilePath)
	if err != nil {
		return apperr.New(apperr.CodeOpenSource, "cli", "run", "could not read profile file").Wrap(err)
	}

	prof, err := profile.Load(data, log)
	if err != nil {
		return err
	}

	driver, err := mssqldriver.Open(ctx, connectionString)
	if err != nil {
		return err
	}
	defer driver.Close()

	options := profile.ImportOptions{
		PathOverride:            opts.pathOverride,
		Deletion:                deletion,
		NoMerge:                 opts.noMerge,
		NoDrop:                  opts.noDrop,
		NoDuplicateOptimization: opts.noDuplicateOptimization,
	}

	exec := executor.New(driver, log)
	if err := exec.Run(ctx, prof, options); err != nil {
		if appErr, ok := apperr.As(err); ok {
			metrics.RecordError(appErr.Component, appErr.Code)
		}
		return err
	}

	log.Info("import completed successfully")
	return nil
}

func resolveLogLevel(flagValue, defaultValue string) logrus.Level {
	value := flagValue
	if value == "" {
		value = defaultValue
	}
	level, err := logrus.ParseLevel(value)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func parseDeletionFlag(value string) (profile.DataSourceDeletion, error) {
	switch value {
	case "retain":
		return profile.DataSourceDeletionRetain, nil
	case "delete":
		return profile.DataSourceDeletionDelete, nil
	default:
		return 0, apperr.New(apperr.CodeCLIValidation, "cli", "parseDeletionFlag", "--deletion must be \"retain\" or \"delete\"")
	}
}
