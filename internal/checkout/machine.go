// Package checkout drives the cart -> order submission -> checkout
// request -> tip -> ticket delivery flow.
//
// Submission carries an exactly-once guarantee per cart: a boolean latch
// rejects (never queues) a second concurrent Submit. Requesting the bill
// is a separate, later action that transitions the session rather than
// the cart, and starts the payment-completion poll.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
	"github.com/molder-opina/pronto-static-sub000/internal/sched"
	"github.com/molder-opina/pronto-static-sub000/internal/session"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// State of the checkout flow.
type State string

const (
	StateIdle                 State = "idle"
	StateSubmitting           State = "submitting"
	StateSuccess              State = "success"
	StateAwaitingTip          State = "awaiting_tip"
	StateAwaitingTicketChoice State = "awaiting_ticket_choice"
	StateDone                 State = "done"
)

// SubmitRequest is the user's checkout form.
type SubmitRequest struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	TableNumber   int
	Notes         string
}

// SubmitResult is delivered to success subscribers.
type SubmitResult struct {
	SessionID               int
	DigitalPaymentAvailable bool
}

// submitResponse is the wire shape of POST /api/orders.
type submitResponse struct {
	SessionID      int `json:"session_id"`
	SessionSummary struct {
		Status                  string `json:"status"`
		DigitalPaymentAvailable bool   `json:"digital_payment_available"`
	} `json:"session_summary"`
}

// phonePattern: optional field, but when present it must be exactly ten
// digits.
var phonePattern = regexp.MustCompile(`^\d{10}$`)

// Machine orchestrates checkout and payment for one client context.
type Machine struct {
	client   *api.Client
	sessions *session.Manager
	cart     *cart.Store
	repo     *storage.Repo
	logger   *slog.Logger

	inFlight atomic.Bool // submission latch

	mu           sync.Mutex
	state        State
	tipAmount    float64
	digitalPay   bool
	subscribers  []func(SubmitResult)
	hooks        Hooks
	pollInterval time.Duration
	paymentPoll  *sched.Task
}

// NewMachine creates the checkout state machine.
func NewMachine(client *api.Client, sessions *session.Manager, cartStore *cart.Store, repo *storage.Repo, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		client:   client,
		sessions: sessions,
		cart:     cartStore,
		repo:     repo,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the current flow state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DigitalPaymentAvailable reports what the last successful submission said.
func (m *Machine) DigitalPaymentAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.digitalPay
}

// SubscribeSuccess registers an observer notified after each successful
// submission.
func (m *Machine) SubscribeSuccess(fn func(SubmitResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Submit validates the form, builds the order payload from the current
// cart, and submits it.
//
// Rejections before any network call: empty cart, malformed phone, or a
// submission already in flight. On success the cart is cleared in both
// tiers and subscribers are notified; on failure the cart is untouched.
// The latch is released on every exit path.
func (m *Machine) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	items := m.cart.Items()
	if len(items) == 0 {
		return SubmitResult{}, &ValidationError{Field: "cart", Reason: "cart is empty"}
	}
	if req.CustomerPhone != "" && !phonePattern.MatchString(req.CustomerPhone) {
		return SubmitResult{}, &ValidationError{Field: "phone", Reason: "must be exactly 10 digits"}
	}

	if !m.inFlight.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrSubmissionInFlight
	}
	defer m.inFlight.Store(false)

	m.setState(StateSubmitting)

	var profile storage.Profile
	m.repo.Get(storage.KeyProfile, &profile)

	sessionID, _ := m.sessions.SessionID()
	payload := buildPayload(req, customerPayload(profile), m.sessions.AnonymousID(), sessionID, items)

	var resp submitResponse
	if err := m.client.Do(ctx, http.MethodPost, "/api/orders", payload, &resp); err != nil {
		m.setState(StateIdle)
		return SubmitResult{}, fmt.Errorf("submit order: %w", err)
	}

	m.sessions.SetSessionID(resp.SessionID)
	m.cart.Clear()
	m.rememberProfile(req)

	result := SubmitResult{
		SessionID:               resp.SessionID,
		DigitalPaymentAvailable: resp.SessionSummary.DigitalPaymentAvailable,
	}

	m.mu.Lock()
	m.state = StateSuccess
	m.digitalPay = result.DigitalPaymentAvailable
	subscribers := append([]func(SubmitResult){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(result)
	}

	m.logger.Info("order submitted", "session_id", resp.SessionID,
		"items", len(items), "digital_payment", result.DigitalPaymentAvailable)
	return result, nil
}

// SubmitTip records the tip amount chosen on the tip screen and advances
// the flow. The amount travels with the payment call.
func (m *Machine) SubmitTip(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tipAmount = amount
	m.state = StateAwaitingTicketChoice
}

// ChooseTicket records the receipt delivery choice and completes the flow.
func (m *Machine) ChooseTicket(choice string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("ticket choice recorded", "choice", choice)
	m.state = StateDone
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// rememberProfile persists form-supplied customer details so later visits
// resolve the same identity. Best-effort.
func (m *Machine) rememberProfile(req SubmitRequest) {
	if req.CustomerName == "" && req.CustomerEmail == "" && req.CustomerPhone == "" {
		return
	}
	var profile storage.Profile
	m.repo.Get(storage.KeyProfile, &profile)
	if req.CustomerName != "" {
		profile.Name = req.CustomerName
	}
	if req.CustomerEmail != "" {
		profile.Email = req.CustomerEmail
	}
	if req.CustomerPhone != "" {
		profile.Phone = req.CustomerPhone
	}
	if err := m.repo.Set(storage.KeyProfile, profile); err != nil {
		m.logger.Debug("persisting profile failed", "error", err)
	}
}
