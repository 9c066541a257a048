package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// withEnv opens the store for the duration of fn and routes failures
// through the formatter.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(*env, *OutputFormatter) error) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(err)
	}
	defer e.Close()
	if err := fn(e, out); err != nil {
		return out.Fail(err)
	}
	return nil
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Self  string            `json:"self"`
	Other string            `json:"other"`
	State connections.State `json:"state"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <self-id> <other-id>",
		Short:         "Show the connection state between two identities, as seen by the first",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(e *env, out *OutputFormatter) error {
				state, err := e.engine.StatusOf(cmd.Context(), args[0], args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "status failed", err)
				}
				res := StatusResult{Self: args[0], Other: args[1], State: state}
				return out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s -> %s: %s\n", res.Self, res.Other, res.State)
				})
			})
		},
	}
}

// NewListCommand creates the connections command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:           "connections <id>",
		Short:         "List the connection records touching an identity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(e *env, out *OutputFormatter) error {
				filter := make([]store.ConnectionStatus, 0, len(statuses))
				for _, s := range statuses {
					st := store.ConnectionStatus(strings.TrimSpace(s))
					if st != store.StatusPending && st != store.StatusAccepted {
						return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", s))
					}
					filter = append(filter, st)
				}
				entries, err := e.engine.List(cmd.Context(), args[0], filter...)
				if err != nil {
					return WrapExitError(ExitCommandError, "list failed", err)
				}
				return out.Success(entries, func(w io.Writer) {
					for _, en := range entries {
						fmt.Fprintf(w, "%-40s %-17s %s\n", en.PairKey, en.State, en.Counterpart.DisplayName)
					}
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (pending, accepted)")
	return cmd
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "suggest <id>",
		Short:         "Show connection suggestions for an identity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(e *env, out *OutputFormatter) error {
				picks, err := e.engine.Suggest(cmd.Context(), args[0], limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "suggest failed", err)
				}
				return out.Success(picks, func(w io.Writer) {
					for _, p := range picks {
						fmt.Fprintf(w, "%s\t%s\n", p.ID, p.DisplayName)
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "candidate pool size (0 uses the configured default)")
	return cmd
}

// ReconcileResult is the output of reconcile-counters.
type ReconcileResult struct {
	Applied bool                `json:"applied"`
	Drifts  []connections.Drift `json:"drifts"`
}

// NewReconcileCommand creates the reconcile-counters command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "reconcile-counters",
		Short: "Compare connection counters with accepted records",
		Long: `Recount every identity's accepted connections and report counters that
disagree. With --apply the stored counters are overwritten. Without it the
command exits 1 when drift is found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var drifted int
			err := withEnv(cmd, rootOpts, func(e *env, out *OutputFormatter) error {
				drifts, err := e.engine.ReconcileCounters(cmd.Context(), apply)
				if err != nil {
					return WrapExitError(ExitCommandError, "reconcile failed", err)
				}
				res := ReconcileResult{Applied: apply, Drifts: drifts}
				if !apply {
					drifted = len(drifts)
				}
				return out.Success(res, func(w io.Writer) {
					for _, d := range drifts {
						fmt.Fprintf(w, "%s: stored %d, actual %d\n", d.ID, d.Stored, d.Actual)
					}
					if len(drifts) == 0 {
						fmt.Fprintln(w, "counters match")
					} else if apply {
						fmt.Fprintf(w, "%d counter(s) corrected\n", len(drifts))
					}
				})
			})
			if err == nil && drifted > 0 {
				// Already reported; only the exit code is left.
				return NewExitError(ExitFailure, fmt.Sprintf("%d counter(s) drifted", drifted))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "overwrite drifted counters")
	return cmd
}
