// Package commands implements the ledgerctl command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/cmd/api"
	"github.com/FACorreiaa/statement-ledger/pkg/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dryRun   bool
	logLevel string
	jsonLogs bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Import, categorize and reconcile bank statements",
		Long: `ledgerctl imports bank statement exports into the ledger, categorizes each row
through the rule cascade and keeps the result deduplicated across overlapping statements.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Use in-memory storage; nothing is written to the database or archive")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(
		newServeCommand(flags),
		newImportCommand(flags),
		newSeedCommand(flags),
		newCategoriesCommand(flags),
		newRulesCommand(flags),
		newReclassifyCommand(flags),
		newExportCommand(flags),
		newCorrectionsCommand(flags),
		newBalanceCommand(flags),
	)

	return rootCmd
}

func (f *globalFlags) logger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(f.logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", f.logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	if f.jsonLogs {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts)), nil
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts)), nil
}

// run loads configuration, builds the dependencies and hands them to fn.
func (f *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, deps *api.Dependencies) error) error {
	logger, err := f.logger(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()
	deps, err := api.InitDependencies(ctx, cfg, logger, api.Options{InMemory: f.dryRun, NoArchive: f.dryRun})
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	return fn(ctx, deps)
}
