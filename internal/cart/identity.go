package cart

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail canonicalizes an email address for use in an
// identity-scoped storage key: Unicode NFC, lowercased, trimmed.
//
// Two spellings of the same mailbox must land on the same cart key, or an
// identity switch would appear to lose the cart.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}
