// Package cli implements circulationctl, the operations tool for the circulation workflow.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Adapter    string
	DSN        string
	Format     string // "json" | "text"
	Metrics    bool
	Trace      bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of circulationctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "circulationctl",
		Short: "Library circulation operations",
		Long: `Borrow and return items, settle fines, and list overdue loans and fine reminders.

Configuration is read from the optional --config YAML file and from CIRCULATION_* environment variables.
The --adapter and --dsn flags take precedence over both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Adapter, "adapter", "", "database adapter (pgx.pool|sql.db|sqlx.db|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database connection string")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print the collected metrics to stderr when done")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "print one line per operation span to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewBorrowCommand(opts))
	cmd.AddCommand(NewReturnCommand(opts))
	cmd.AddCommand(NewPayCommand(opts))
	cmd.AddCommand(NewFineCommand(opts))
	cmd.AddCommand(NewOverdueCommand(opts))
	cmd.AddCommand(NewRemindersCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))

	return cmd
}
