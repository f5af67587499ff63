package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/app"
	"github.com/molder-opina/pronto-static-sub000/internal/checkout"
	"github.com/molder-opina/pronto-static-sub000/internal/orders"
	"github.com/molder-opina/pronto-static-sub000/internal/reconcile"
	"github.com/molder-opina/pronto-static-sub000/internal/status"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow order progress until interrupted",
		Long: `Run the polling loops in the foreground and print order updates as
they arrive. Orders refresh on a fixed cadence; session expiry is checked
on a cadence derived from the time remaining. Stops on Ctrl-C or when the
session ends.`,
		Example:       "  pronto watch --table 14",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
}

func runWatch(rootOpts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, rootOpts)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	invalidated := make(chan struct{}, 1)
	a, err := buildApp(rootOpts, f, app.Options{
		Observers: reconcile.Observers{
			OnOrders: func(list []orders.Order) { printOrders(f, list) },
			OnInvalidate: func() {
				select {
				case invalidated <- struct{}{}:
				default:
				}
			},
		},
		Hooks: checkout.Hooks{
			Celebrate: func() { fmt.Fprintln(f.Writer, "payment confirmed") },
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.TableID > 0 {
		if _, err := a.Sessions.Init(ctx, a.Config.TableID); err != nil {
			_ = f.Error("session", "could not open a session", err.Error())
			return WrapExitError(ExitFailure, "watch failed", err)
		}
	}
	if _, ok := a.Sessions.SessionID(); !ok {
		return NewExitError(ExitFailure, "no active session to watch")
	}

	a.SetView(reconcile.ViewTracker)
	a.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		f.VerboseLog("received %v, stopping", sig)
	case <-invalidated:
		fmt.Fprintln(f.Writer, "session ended")
	case <-ctx.Done():
	}
	return nil
}

func printOrders(f *OutputFormatter, list []orders.Order) {
	if len(list) == 0 {
		fmt.Fprintln(f.Writer, "no open orders")
		return
	}
	for _, o := range list {
		fmt.Fprintf(f.Writer, "#%d  %-22s  %.2f\n",
			o.ID, status.DisplayName(o.WorkflowStatus), o.TotalAmount)
	}
}
