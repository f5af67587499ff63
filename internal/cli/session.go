package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/app"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the table session",
		Long: `Manage the diner's table session.

A session binds this client to a table on the server. The open subcommand
reuses a persisted session when the server still recognizes it for the
table, and opens a fresh one otherwise.`,
	}

	cmd.AddCommand(newSessionOpenCommand(rootOpts))
	cmd.AddCommand(newSessionShowCommand(rootOpts))
	cmd.AddCommand(newSessionCloseCommand(rootOpts))

	return cmd
}

func newSessionOpenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open or resume the session for the configured table",
		Example: `  pronto session open --table 14
  pronto --config pronto.yaml session open`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			a, err := buildApp(rootOpts, f, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Config.TableID <= 0 {
				return NewExitError(ExitCommandError, "no table configured: pass --table or set table_id in the config")
			}

			id, err := a.Sessions.Init(cmd.Context(), a.Config.TableID)
			if err != nil {
				_ = f.Error("session", "could not open a session", err.Error())
				return WrapExitError(ExitFailure, "session open failed", err)
			}
			return f.Success(map[string]any{
				"session_id": id,
				"table_id":   a.Config.TableID,
			})
		},
	}
}

func newSessionShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Show the persisted session, if any",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			a, err := buildApp(rootOpts, f, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			id, ok := a.Sessions.SessionID()
			if !ok {
				return f.Success(map[string]any{"active": false})
			}

			data := map[string]any{
				"active":     true,
				"session_id": id,
				"anon_id":    a.Sessions.AnonymousID(),
			}
			if expires, err := a.Sessions.Timeout(cmd.Context(), id); err != nil {
				f.VerboseLog("expiry lookup failed: %v", err)
			} else if expires != nil {
				data["expires_at"] = expires
			}
			return f.Success(data)
		},
	}
}

func newSessionCloseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "close",
		Short:         "Forget the persisted session",
		Long:          "Drop the local session binding. The server-side session record is untouched.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			a, err := buildApp(rootOpts, f, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			id, ok := a.Sessions.SessionID()
			a.Sessions.Clear()
			if !ok {
				return f.Success("no session to close")
			}
			return f.Success(fmt.Sprintf("session %d forgotten", id))
		},
	}
}

// sessionGone reports whether an error means the server no longer knows
// the session, as opposed to a transient failure.
func sessionGone(err error) bool {
	return api.IsNotFound(err)
}
