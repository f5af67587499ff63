package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/app"
	"github.com/molder-opina/pronto-static-sub000/internal/orders"
	"github.com/molder-opina/pronto-static-sub000/internal/status"
)

// OrderListOptions holds flags for the order list command.
type OrderListOptions struct {
	*RootOptions
	OpenOnly bool
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect the session's orders",
	}
	cmd.AddCommand(newOrderListCommand(rootOpts))
	return cmd
}

func newOrderListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders for the active session",
		Long: `List the orders attached to the active session, most recent first,
with workflow statuses as the kitchen reports them.

A session the server no longer recognizes is forgotten locally; this is
a normal outcome, not a failure.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listOrders(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.OpenOnly, "open", false, "only orders still in progress")

	return cmd
}

func listOrders(opts *OrderListOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)
	a, err := buildApp(opts.RootOptions, f, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, ok := a.Sessions.SessionID()
	if !ok {
		return f.Success(map[string]any{"orders": []orders.Order{}})
	}

	result, err := orders.Fetch(cmd.Context(), a.Client, sessionID)
	if err != nil {
		if sessionGone(err) {
			a.Sessions.Clear()
			f.VerboseLog("session %d no longer exists, forgotten", sessionID)
			return f.Success(map[string]any{"orders": []orders.Order{}})
		}
		_ = f.Error("order", "could not fetch orders", err.Error())
		return WrapExitError(ExitFailure, "order list failed", err)
	}

	list := result.Orders
	if opts.OpenOnly {
		open := list[:0]
		for _, o := range list {
			if o.IsOpen() {
				open = append(open, o)
			}
		}
		list = open
	}

	if f.Format == "json" {
		return f.Success(map[string]any{
			"session_id": sessionID,
			"orders":     list,
		})
	}

	if len(list) == 0 {
		return f.Success("no orders")
	}
	var b strings.Builder
	for _, o := range list {
		fmt.Fprintf(&b, "#%d  %-22s  %.2f\n",
			o.ID, status.DisplayName(o.WorkflowStatus), o.TotalAmount)
	}
	return f.Success(strings.TrimRight(b.String(), "\n"))
}
