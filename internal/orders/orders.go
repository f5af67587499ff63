// Package orders holds the read-only order projection pulled from the
// server. Orders are never mutated locally; the one exception is the
// workflow status, which is normalized into the legacy vocabulary exactly
// once, here, on ingestion. Consumers never see a raw server status.
package orders

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/status"
)

// Item is one line of a placed order.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the client-side projection of a server order.
type Order struct {
	ID             int       `json:"id"`
	SessionID      int       `json:"session_id"`
	WorkflowStatus string    `json:"workflow_status"` // normalized, legacy vocabulary
	Items          []Item    `json:"items"`
	TotalAmount    float64   `json:"total_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsOpen reports whether the order still needs attention (not paid, not
// cancelled).
func (o Order) IsOpen() bool {
	return !status.IsTerminal(o.WorkflowStatus)
}

// SessionInfo is the session record attached to an order listing.
type SessionInfo struct {
	ID        int        `json:"id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ListResult is the normalized outcome of an order fetch.
type ListResult struct {
	Orders  []Order
	Session *SessionInfo
}

// wireOrder carries both status spellings the server may emit.
type wireOrder struct {
	ID           int       `json:"id"`
	SessionID    int       `json:"session_id"`
	Status       string    `json:"status"`
	LegacyStatus string    `json:"legacy_status"`
	Items        []Item    `json:"items"`
	TotalAmount  float64   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

type listResponse struct {
	Orders  []wireOrder  `json:"orders"`
	Session *SessionInfo `json:"session"`
}

// Fetch pulls the orders under a session and normalizes every status at
// the boundary.
func Fetch(ctx context.Context, client *api.Client, sessionID int) (ListResult, error) {
	var resp listResponse
	endpoint := fmt.Sprintf("/api/session/%d/orders", sessionID)
	if err := client.Do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return ListResult{}, err
	}

	result := ListResult{Session: resp.Session}
	for _, w := range resp.Orders {
		result.Orders = append(result.Orders, Order{
			ID:             w.ID,
			SessionID:      w.SessionID,
			WorkflowStatus: status.Normalize(w.Status, w.LegacyStatus),
			Items:          w.Items,
			TotalAmount:    w.TotalAmount,
			CreatedAt:      w.CreatedAt,
		})
	}
	return result, nil
}
