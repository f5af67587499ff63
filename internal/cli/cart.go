package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/app"
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
)

// CartAddOptions holds flags for the cart add command.
type CartAddOptions struct {
	Name          string
	UnitPrice     float64
	Quantity      int
	ModifierTotal float64
	Modifiers     []string
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit the saved cart",
		Long: `Inspect and edit the cart persisted for the current identity.

The cart is scoped to the diner's identity: the normalized account email
when one is stored, the anonymous client id otherwise. Switching identity
switches carts without merging.`,
	}

	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartListCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))
	cmd.AddCommand(newCartTotalCommand(rootOpts))

	return cmd
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <menu-item-id>",
		Short: "Add a line to the cart",
		Example: `  pronto cart add 42 --name "Margherita" --price 11.50
  pronto cart add 42 --name "Margherita" --price 11.50 --qty 2 --modifier "extra cheese" --modifier-total 1.50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)

			menuItemID, err := strconv.Atoi(args[0])
			if err != nil || menuItemID <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid menu item id %q", args[0]))
			}
			if opts.Quantity <= 0 {
				return NewExitError(ExitCommandError, "quantity must be positive")
			}

			a, err := buildApp(rootOpts, f, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			a.Cart.Add(cart.Item{
				MenuItemID:         menuItemID,
				Name:               opts.Name,
				UnitPrice:          opts.UnitPrice,
				Quantity:           opts.Quantity,
				ModifierNames:      opts.Modifiers,
				ModifierPriceTotal: opts.ModifierTotal,
			})
			return f.Success(map[string]any{
				"items": a.Cart.TotalCount(),
				"total": a.Cart.TotalPrice(),
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "menu item name")
	cmd.Flags().Float64Var(&opts.UnitPrice, "price", 0, "unit price")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 1, "quantity")
	cmd.Flags().StringArrayVar(&opts.Modifiers, "modifier", nil, "modifier name (repeatable)")
	cmd.Flags().Float64Var(&opts.ModifierTotal, "modifier-total", 0, "total price of selected modifiers")

	return cmd
}

func newCartListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the saved cart",
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

			items := a.Cart.Items()
			if f.Format == "json" {
				return f.Success(map[string]any{
					"identity": a.Identity(),
					"items":    items,
					"count":    a.Cart.TotalCount(),
					"total":    a.Cart.TotalPrice(),
				})
			}

			if len(items) == 0 {
				return f.Success("cart is empty")
			}
			var b strings.Builder
			for i, item := range items {
				fmt.Fprintf(&b, "%2d. %dx %s", i+1, item.Quantity, item.Name)
				if len(item.ModifierNames) > 0 {
					fmt.Fprintf(&b, " (%s)", strings.Join(item.ModifierNames, ", "))
				}
				fmt.Fprintf(&b, "  %.2f\n", item.LineTotal())
			}
			fmt.Fprintf(&b, "total: %.2f", a.Cart.TotalPrice())
			return f.Success(b.String())
		},
	}
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <line-number>",
		Short:         "Remove a line from the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)

			line, err := strconv.Atoi(args[0])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid line number %q", args[0]))
			}

			a, err := buildApp(rootOpts, f, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			items := a.Cart.Items()
			if line < 1 || line > len(items) {
				return NewExitError(ExitFailure,
					fmt.Sprintf("line %d out of range: cart has %d items", line, len(items)))
			}
			a.Cart.Remove(line - 1)
			return f.Success(map[string]any{
				"items": a.Cart.TotalCount(),
				"total": a.Cart.TotalPrice(),
			})
		},
	}
}

func newCartTotalCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "total",
		Short:         "Show item count and price total",
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

			if f.Format == "json" {
				return f.Success(map[string]any{
					"count": a.Cart.TotalCount(),
					"total": a.Cart.TotalPrice(),
				})
			}
			return f.Success(fmt.Sprintf("%d items, %.2f total",
				a.Cart.TotalCount(), a.Cart.TotalPrice()))
		},
	}
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Empty the saved cart",
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

			a.Cart.Clear()
			return f.Success("cart cleared")
		},
	}
}
