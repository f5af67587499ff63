// Package session manages the lifecycle of the diner's ordering session:
// the server-tracked binding between a physical table and an in-progress
// ordering interaction.
//
// Lifecycle: NoSession -> Opening -> Active -> (Invalidated | Expired) ->
// NoSession. Exactly one session is held at a time, in a fixed storage
// slot. The manager never caches session state in memory across calls;
// every accessor re-reads storage, because a second client sharing the
// same store is an external, uncoordinated writer.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// MaxAge is the client-side conservative expiry: a session whose local
// creation stamp is older than this is treated as absent without a network
// call. Server-side expiry is polled separately by the reconciler.
const MaxAge = 24 * time.Hour

// Status values a session moves through, as reported by the server.
const (
	StatusOpen            = "open"
	StatusAwaitingTip     = "awaiting_tip"
	StatusAwaitingPayment = "awaiting_payment"
	StatusAwaitingConfirm = "awaiting_payment_confirmation"
	StatusPaid            = "paid"
	StatusClosed          = "closed"
	StatusCancelled       = "cancelled"
)

// Session is the server-reported session record.
type Session struct {
	SessionID         int        `json:"session_id"`
	TableID           int        `json:"table_id"`
	AnonymousClientID string     `json:"anon_id"`
	Status            string     `json:"status"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// Manager owns the persisted session identifier and its expiry policy.
type Manager struct {
	repo   *storage.Repo
	client *api.Client
	ident  IdentGenerator
	logger *slog.Logger
	now    func() time.Time
	maxAge time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (for expiry tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxAge overrides the client-side expiry threshold.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

// WithIdentGenerator overrides the anonymous identifier generator.
func WithIdentGenerator(g IdentGenerator) Option {
	return func(m *Manager) { m.ident = g }
}

// NewManager creates a session Manager over the given repository and API
// client.
func NewManager(repo *storage.Repo, client *api.Client, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:   repo,
		client: client,
		ident:  UUIDv7Generator{},
		logger: logger,
		now:    time.Now,
		maxAge: MaxAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AnonymousID returns the persisted anonymous client identifier,
// generating and persisting one on first use.
func (m *Manager) AnonymousID() string {
	var id string
	if m.repo.Get(storage.KeyAnonymousID, &id) && id != "" {
		return id
	}
	id = m.ident.Generate()
	if err := m.repo.Set(storage.KeyAnonymousID, id); err != nil {
		// A blocked store still gets a working identity for this run.
		m.logger.Debug("persisting anonymous id failed", "error", err)
	}
	return id
}

// SessionID returns the persisted session identifier.
//
// A session older than the max-age threshold (by locally stamped creation
// time) is reported absent without any network call, and the stale slots
// are cleared.
func (m *Manager) SessionID() (int, bool) {
	var id int
	if !m.repo.Get(storage.KeySessionID, &id) || id == 0 {
		return 0, false
	}
	var createdAt time.Time
	if m.repo.Get(storage.KeySessionCreatedAt, &createdAt) {
		if m.now().Sub(createdAt) > m.maxAge {
			m.logger.Info("session exceeded local max age, discarding", "session_id", id)
			m.Clear()
			return 0, false
		}
	}
	return id, true
}

// SetSessionID persists a session identifier and stamps its creation time.
func (m *Manager) SetSessionID(id int) {
	if err := m.repo.Set(storage.KeySessionID, id); err != nil {
		m.logger.Debug("persisting session id failed", "error", err)
	}
	if err := m.repo.Set(storage.KeySessionCreatedAt, m.now()); err != nil {
		m.logger.Debug("persisting session stamp failed", "error", err)
	}
}

// Clear destroys the local session binding. The session record itself is
// server-owned; locally it is cleared, never mutated.
func (m *Manager) Clear() {
	m.repo.Delete(storage.KeySessionID)
	m.repo.Delete(storage.KeySessionCreatedAt)
}

// openResponse is the wire shape of POST /api/sessions/open.
type openResponse struct {
	SessionID int        `json:"session_id"`
	AnonID    string     `json:"anon_id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// validateResponse is the wire shape of GET /api/sessions/validate.
type validateResponse struct {
	Valid bool `json:"valid"`
}

// Init establishes the active session for a table.
//
// A persisted session id is validated against the table first and reused
// when the server still recognizes it; otherwise it is discarded and a new
// session is opened, carrying the table id and any previously generated
// anonymous id. Network failure on open surfaces as an error the caller
// must render without abandoning navigation.
func (m *Manager) Init(ctx context.Context, tableID int) (int, error) {
	if id, ok := m.SessionID(); ok {
		valid, err := m.validate(ctx, id, tableID)
		if err != nil {
			return 0, fmt.Errorf("validate session: %w", err)
		}
		if valid {
			m.logger.Debug("reusing persisted session", "session_id", id, "table_id", tableID)
			return id, nil
		}
		m.logger.Info("persisted session rejected for table, reopening",
			"session_id", id, "table_id", tableID)
		m.Clear()
	}
	return m.open(ctx, tableID)
}

func (m *Manager) validate(ctx context.Context, sessionID, tableID int) (bool, error) {
	endpoint := fmt.Sprintf("/api/sessions/validate?session_id=%d&table_id=%d", sessionID, tableID)
	var resp validateResponse
	if err := m.client.Do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if api.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Valid, nil
}

func (m *Manager) open(ctx context.Context, tableID int) (int, error) {
	req := map[string]any{
		"table_id": tableID,
		"anon_id":  m.AnonymousID(),
	}
	var resp openResponse
	if err := m.client.Do(ctx, http.MethodPost, "/api/sessions/open", req, &resp); err != nil {
		return 0, fmt.Errorf("open session: %w", err)
	}

	m.SetSessionID(resp.SessionID)
	if resp.AnonID != "" {
		if err := m.repo.Set(storage.KeyAnonymousID, resp.AnonID); err != nil {
			m.logger.Debug("persisting anonymous id failed", "error", err)
		}
	}
	m.logger.Info("session opened", "session_id", resp.SessionID, "table_id", tableID)
	return resp.SessionID, nil
}

// Timeout fetches the server-side expiry for the active session.
// Used by the reconciler to derive its dynamic polling interval.
func (m *Manager) Timeout(ctx context.Context, sessionID int) (*time.Time, error) {
	var resp struct {
		ExpiresAt *time.Time `json:"expires_at"`
	}
	endpoint := fmt.Sprintf("/api/session/%d/timeout", sessionID)
	if err := m.client.Do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ExpiresAt, nil
}
