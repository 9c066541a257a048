// Package cli implements campusmeshctl, the operator command line for a
// campusmesh store.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath   string
	Mode         string
	StoreDriver  string
	StoreDataDir string
	StoreDSN     string
	Format       string // "json" | "text"
	Verbose      bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "campusmeshctl",
		Short: "Inspect and repair a campusmesh store",
		Long: `campusmeshctl reads the same configuration as the server and works
directly on its store: connection states, suggestions and counter repair.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to TOML config file")
	flags.StringVar(&opts.Mode, "mode", "", "operating mode: strict or dev")
	flags.StringVar(&opts.StoreDriver, "store-driver", "", "store driver (overrides config)")
	flags.StringVar(&opts.StoreDataDir, "store-data-dir", "", "data directory for json and sqlite stores (overrides config)")
	flags.StringVar(&opts.StoreDSN, "store-dsn", "", "postgres DSN (overrides config)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSuggestCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}
