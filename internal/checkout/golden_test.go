package checkout

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/molder-opina/pronto-static-sub000/internal/cart"
)

// The submitted order body is a wire contract with the platform; a golden
// file pins its exact shape so a refactor cannot silently rename a field.
func TestBuildPayload_Golden(t *testing.T) {
	req := SubmitRequest{
		CustomerName:  "Ada Lovelace",
		CustomerPhone: "5551234567",
		TableNumber:   12,
		Notes:         "no onions",
	}
	items := []cart.Item{
		{MenuItemID: 7, Name: "Margherita", UnitPrice: 11.5, Quantity: 2,
			SelectedModifierIDs: []int{31, 44}},
		{MenuItemID: 9, Name: "Lemonade", UnitPrice: 3, Quantity: 1},
	}

	payload := buildPayload(req, customerPayload{}, "anon-0190-fixed", 88, items)

	encoded, err := json.MarshalIndent(payload, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "submit_payload", append(encoded, '\n'))
}
