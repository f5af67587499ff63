package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/app"
	"github.com/molder-opina/pronto-static-sub000/internal/checkout"
)

// CheckoutSubmitOptions holds flags for the checkout submit command.
type CheckoutSubmitOptions struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// NewCheckoutCommand creates the checkout command group.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Submit the cart and settle the bill",
	}

	cmd.AddCommand(newCheckoutSubmitCommand(rootOpts))
	cmd.AddCommand(newCheckoutBillCommand(rootOpts))
	cmd.AddCommand(newCheckoutPayCommand(rootOpts))

	return cmd
}

func newCheckoutSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckoutSubmitOptions{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the saved cart as an order",
		Long: `Submit the saved cart as an order on the active session.

Customer fields are optional; values given here override the stored
profile and are remembered for the next checkout. On success the cart is
cleared and the server-assigned session is persisted.`,
		Example: `  pronto checkout submit
  pronto checkout submit --name "Ada" --email ada@example.com --phone 5550001234`,
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

			result, err := a.Checkout.Submit(cmd.Context(), checkout.SubmitRequest{
				CustomerName:  opts.Name,
				CustomerEmail: opts.Email,
				CustomerPhone: opts.Phone,
				TableNumber:   a.Config.TableID,
				Notes:         opts.Notes,
			})
			if err != nil {
				var vErr *checkout.ValidationError
				if errors.As(err, &vErr) {
					_ = f.Error("validation", vErr.Error(), map[string]string{"field": vErr.Field})
					return WrapExitError(ExitFailure, "invalid checkout form", err)
				}
				_ = f.Error("checkout", "order submission failed", err.Error())
				return WrapExitError(ExitFailure, "checkout failed", err)
			}

			return f.Success(map[string]any{
				"session_id":        result.SessionID,
				"digital_pay":       result.DigitalPaymentAvailable,
				"remaining_in_cart": a.Cart.TotalCount(),
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "customer email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "customer phone (10 digits)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "order notes for the kitchen")

	return cmd
}

func newCheckoutBillCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bill",
		Short: "Ask for the bill and wait for payment",
		Long: `Request checkout for the active session, then poll until payment is
observed. Once the session reads paid the local session is reset, or only
the tracker is refreshed when other orders are still open. Stops on
Ctrl-C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBill(rootOpts, cmd)
		},
	}
}

func runBill(rootOpts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, rootOpts)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// The payment poll outlives RequestCheckout; the command must stay
	// alive until the poll settles or the diner gives up.
	settled := make(chan string, 1)
	report := func(outcome string) {
		select {
		case settled <- outcome:
		default:
		}
	}
	a, err := buildApp(rootOpts, f, app.Options{
		Hooks: checkout.Hooks{
			Celebrate:      func() { f.VerboseLog("payment confirmed") },
			ResetSession:   func() { report("paid, session closed") },
			RefreshTracker: func() { report("paid, other orders still open") },
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, ok := a.Sessions.SessionID()
	if !ok {
		return NewExitError(ExitFailure, "no active session")
	}
	if err := a.Checkout.RequestCheckout(ctx, sessionID); err != nil {
		_ = f.Error("checkout", "could not request the bill", err.Error())
		return WrapExitError(ExitFailure, "bill request failed", err)
	}
	f.VerboseLog("bill requested for session %d, waiting for payment", sessionID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case outcome := <-settled:
		return f.Success(map[string]any{
			"session_id": sessionID,
			"outcome":    outcome,
		})
	case sig := <-sigChan:
		f.VerboseLog("received %v, stopping", sig)
		return nil
	case <-ctx.Done():
		return nil
	}
}

func newCheckoutPayCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		method string
		tip    float64
	)

	cmd := &cobra.Command{
		Use:           "pay",
		Short:         "Pay the session digitally",
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

			sessionID, ok := a.Sessions.SessionID()
			if !ok {
				return NewExitError(ExitFailure, "no active session")
			}
			if tip > 0 {
				a.Checkout.SubmitTip(tip)
			}

			result, err := a.Checkout.Pay(cmd.Context(), sessionID, method)
			if err != nil {
				_ = f.Error("payment", "payment failed", err.Error())
				return WrapExitError(ExitFailure, "payment failed", err)
			}
			return f.Success(map[string]any{
				"requires_confirmation": result.RequiresConfirmation,
				"session_status":        result.SessionStatus,
			})
		},
	}

	cmd.Flags().StringVar(&method, "method", "card", "payment method")
	cmd.Flags().Float64Var(&tip, "tip", 0, "tip amount")

	return cmd
}
