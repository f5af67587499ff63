package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// SchemaVersion tags every key. Bumping it orphans old values instead of
// risking a deserialization crash on an incompatible historical shape.
const SchemaVersion = 2

// Well-known key names. Cart keys are derived per identity via CartKey.
const (
	KeySessionID        = "session_id"
	KeySessionCreatedAt = "session_created_at"
	KeyAnonymousID      = "anonymous_client_id"
	KeyProfile          = "customer_profile"
	KeyDismissedOrders  = "dismissed_cancelled_orders"
)

// CartKey derives the storage key for an identity-scoped cart.
func CartKey(identity string) string {
	return "cart." + identity
}

// Profile is the locally stored customer record used to resolve identity.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Repo is the typed repository every component reads and writes client
// state through. Values are JSON-serialized; reads treat absence and parse
// failure alike as "value not set."
type Repo struct {
	backend Backend
	logger  *slog.Logger
}

// NewRepo wraps a backend in the typed repository.
func NewRepo(backend Backend, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{backend: backend, logger: logger}
}

// versioned prefixes a key name with the schema version tag.
func versioned(name string) string {
	return fmt.Sprintf("pronto.v%d.%s", SchemaVersion, name)
}

// Get reads and decodes a key into out. Returns false when the key is
// absent, unreadable, or fails to decode; it never returns an error to the
// caller.
func (r *Repo) Get(name string, out any) bool {
	raw, ok, err := r.backend.Get(versioned(name))
	if err != nil {
		r.logger.Debug("storage read failed", "key", name, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// Corrupt value: treat as not set, leave the slot for the next write.
		r.logger.Debug("storage value unreadable", "key", name, "error", err)
		return false
	}
	return true
}

// Set encodes and writes a key. The returned error carries the storage
// classification (ErrQuotaExceeded, ErrBlocked) for callers that degrade.
func (r *Repo) Set(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return r.backend.Set(versioned(name), string(raw))
}

// Delete removes a key. Failures are logged and swallowed; deletion is
// always best-effort.
func (r *Repo) Delete(name string) {
	if err := r.backend.Delete(versioned(name)); err != nil {
		r.logger.Debug("storage delete failed", "key", name, "error", err)
	}
}

// Close releases the underlying backend.
func (r *Repo) Close() error { return r.backend.Close() }
