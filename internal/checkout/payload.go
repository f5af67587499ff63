package checkout

import (
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
)

// customerPayload is the resolved identity sent with an order.
type customerPayload struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// orderLine is one cart line on the wire, carrying its modifier selection.
type orderLine struct {
	MenuItemID  int     `json:"menu_item_id"`
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	ModifierIDs []int   `json:"modifier_ids,omitempty"`
}

// orderPayload is the body of POST /api/orders.
type orderPayload struct {
	Customer    customerPayload `json:"customer"`
	Items       []orderLine     `json:"items"`
	TableNumber int             `json:"table_number"`
	Notes       string          `json:"notes,omitempty"`
	SessionID   int             `json:"session_id,omitempty"`
	// AnonymousClientID attributes the order to an unauthenticated device.
	// Omitted whenever a customer email is resolved.
	AnonymousClientID string `json:"anonymous_client_id,omitempty"`
}

// buildPayload binds resolved identity and cart lines into the order body.
//
// Identity precedence: form input > stored profile > anonymous identifier.
// The anonymous identifier is dropped as soon as an email is known, so the
// server attributes the order to the account instead of the device.
func buildPayload(req SubmitRequest, profile customerPayload, anonID string, sessionID int, items []cart.Item) orderPayload {
	customer := customerPayload{
		Name:  firstNonEmpty(req.CustomerName, profile.Name),
		Email: firstNonEmpty(req.CustomerEmail, profile.Email),
		Phone: firstNonEmpty(req.CustomerPhone, profile.Phone),
	}

	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, orderLine{
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			ModifierIDs: item.SelectedModifierIDs,
		})
	}

	payload := orderPayload{
		Customer:    customer,
		Items:       lines,
		TableNumber: req.TableNumber,
		Notes:       req.Notes,
		SessionID:   sessionID,
	}
	if customer.Email == "" {
		payload.AnonymousClientID = anonID
	}
	return payload
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
