// Package status owns the two order-lifecycle vocabularies used by the
// platform and the translation between them.
//
// The backend historically emitted a per-stage "legacy" vocabulary
// (requested, waiter_accepted, ...) and newer endpoints emit a "canonical"
// one (new, queued, ...). Both encode the same seven lifecycle stages plus
// cancellation. Every server payload is normalized through this package
// exactly once, at ingestion; no other package may compare raw server
// status strings.
package status

// Legacy values are the internal representation. Display, filtering, and
// comparison all happen in this vocabulary.
const (
	LegacyRequested         = "requested"
	LegacyWaiterAccepted    = "waiter_accepted"
	LegacyKitchenInProgress = "kitchen_in_progress"
	LegacyReadyForDelivery  = "ready_for_delivery"
	LegacyDelivered         = "delivered"
	LegacyWaitForPayment    = "wait_for_payment"
	LegacyPayed             = "payed"
	LegacyCancelled         = "cancelled"
)

// Canonical values as emitted by newer endpoints.
const (
	CanonicalNew             = "new"
	CanonicalQueued          = "queued"
	CanonicalPreparing       = "preparing"
	CanonicalReady           = "ready"
	CanonicalDelivered       = "delivered"
	CanonicalAwaitingPayment = "awaiting_payment"
	CanonicalPaid            = "paid"
	CanonicalCancelled       = "cancelled"
)

// canonicalToLegacy is the fixed translation table. Both vocabularies are
// closed; an entry exists for every canonical stage.
var canonicalToLegacy = map[string]string{
	CanonicalNew:             LegacyRequested,
	CanonicalQueued:          LegacyWaiterAccepted,
	CanonicalPreparing:       LegacyKitchenInProgress,
	CanonicalReady:           LegacyReadyForDelivery,
	CanonicalDelivered:       LegacyDelivered,
	CanonicalAwaitingPayment: LegacyWaitForPayment,
	CanonicalPaid:            LegacyPayed,
	CanonicalCancelled:       LegacyCancelled,
}

var legacyToCanonical = invert(canonicalToLegacy)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Normalize resolves a server-reported status to the legacy vocabulary.
//
// Precedence:
//  1. An explicit legacy value wins unconditionally - it is the most
//     specific signal the server can send, even when it disagrees with
//     the canonical value.
//  2. A known canonical value is mapped through the translation table.
//  3. Anything else passes through unchanged, so an unknown future stage
//     degrades to "displayed verbatim" rather than an error.
func Normalize(status, legacy string) string {
	if legacy != "" {
		return legacy
	}
	if mapped, ok := canonicalToLegacy[status]; ok {
		return mapped
	}
	return status
}

// CanonicalFor returns the canonical spelling of a legacy value, or the
// input unchanged if it is not a known legacy value.
func CanonicalFor(legacy string) string {
	if mapped, ok := legacyToCanonical[legacy]; ok {
		return mapped
	}
	return legacy
}

// IsTerminal reports whether a normalized status ends the order lifecycle.
func IsTerminal(legacy string) bool {
	switch legacy {
	case LegacyPayed, LegacyCancelled:
		return true
	}
	return false
}

// displayNames maps normalized statuses to the labels views render.
var displayNames = map[string]string{
	LegacyRequested:         "Order placed",
	LegacyWaiterAccepted:    "Accepted",
	LegacyKitchenInProgress: "In the kitchen",
	LegacyReadyForDelivery:  "Ready",
	LegacyDelivered:         "Delivered",
	LegacyWaitForPayment:    "Awaiting payment",
	LegacyPayed:             "Paid",
	LegacyCancelled:         "Cancelled",
}

// DisplayName returns a human-readable label for a normalized status.
// Unknown statuses are returned verbatim.
func DisplayName(legacy string) string {
	if name, ok := displayNames[legacy]; ok {
		return name
	}
	return legacy
}
