package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storefront/internal/client"
	"storefront/internal/models"
)

// CartMutation is the output of the cart mutation commands.
type CartMutation struct {
	Action  string           `json:"action"`
	ItemID  string           `json:"item_id,omitempty"`
	Item    *models.CartItem `json:"item,omitempty"`
	Removed int64            `json:"removed,omitempty"`
}

func (m CartMutation) String() string {
	switch m.Action {
	case "add":
		return fmt.Sprintf("Added %d x %s (item %s)", m.Item.Quantity, m.Item.ProductID, m.Item.ID)
	case "clear":
		return fmt.Sprintf("Removed %d item(s)", m.Removed)
	case "remove":
		return "Removed item " + m.ItemID
	default:
		return "Updated item " + m.ItemID
	}
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Read and change the session's cart",
	}

	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartUpdateCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))

	return cmd
}

func newAPIClient(opts *RootOptions) *client.Client {
	return client.New(opts.URL, opts.AnonKey, client.WithAdminToken(opts.AdminToken))
}

func newCartShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Show cart lines with live product data",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			money, err := NewMoneyFormatter(rootOpts.Currency)
			if err != nil {
				formatter.Error("client_input", err.Error(), nil)
				return &ExitError{Code: ExitCommandError, Message: "invalid currency", Err: err, Reported: true}
			}

			sessionID := resolveSession(rootOpts, formatter)
			formatter.VerboseLog("Session %s", sessionID)

			lines, err := newAPIClient(rootOpts).GetCart(cmd.Context(), sessionID)
			if err != nil {
				return formatter.Fail("failed to load cart", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(lines)
			}
			if len(lines) == 0 {
				return formatter.Success("Cart is empty")
			}
			RenderCart(formatter.Writer, lines, money)
			return nil
		},
	}
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		quantity int
		size     string
		cartID   string
	)

	cmd := &cobra.Command{
		Use:           "add <product-id>",
		Short:         "Add a product to the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			sessionID := resolveSession(rootOpts, formatter)

			item, err := newAPIClient(rootOpts).AddItem(cmd.Context(), sessionID, cartID, args[0], quantity, size)
			if err != nil {
				return formatter.Fail("failed to add item", err)
			}
			return formatter.Success(CartMutation{Action: "add", ItemID: item.ID, Item: item})
		},
	}

	cmd.Flags().IntVarP(&quantity, "qty", "q", 1, "quantity to add")
	cmd.Flags().StringVar(&size, "size", "", "product size")
	cmd.Flags().StringVar(&cartID, "cart-id", "", "existing cart id (resolved from the session when empty)")

	return cmd
}

func newCartUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "update <item-id> <quantity>",
		Short:         "Set an item's quantity (0 removes it)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				formatter.Error("client_input", fmt.Sprintf("invalid quantity %q", args[1]), nil)
				return &ExitError{Code: ExitCommandError, Message: "invalid quantity", Err: err, Reported: true}
			}

			sessionID := resolveSession(rootOpts, formatter)
			if err := newAPIClient(rootOpts).UpdateQuantity(cmd.Context(), sessionID, args[0], quantity); err != nil {
				return formatter.Fail("failed to update item", err)
			}

			action := "update"
			if quantity <= 0 {
				action = "remove"
			}
			return formatter.Success(CartMutation{Action: action, ItemID: args[0]})
		},
	}
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <item-id>",
		Short:         "Remove an item from the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			sessionID := resolveSession(rootOpts, formatter)

			if err := newAPIClient(rootOpts).RemoveItem(cmd.Context(), sessionID, args[0]); err != nil {
				return formatter.Fail("failed to remove item", err)
			}
			return formatter.Success(CartMutation{Action: "remove", ItemID: args[0]})
		},
	}
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Remove every item from the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			sessionID := resolveSession(rootOpts, formatter)

			removed, err := newAPIClient(rootOpts).ClearCart(cmd.Context(), sessionID)
			if err != nil {
				return formatter.Fail("failed to clear cart", err)
			}
			return formatter.Success(CartMutation{Action: "clear", Removed: removed})
		},
	}
}
