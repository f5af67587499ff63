package checkout

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/orders"
	"github.com/molder-opina/pronto-static-sub000/internal/sched"
	"github.com/molder-opina/pronto-static-sub000/internal/session"
)

// DefaultPaymentPollInterval is how often session status is checked while
// a checkout-for-payment is outstanding.
const DefaultPaymentPollInterval = 3 * time.Second

// Hooks are the side effects the payment flow triggers in the view layer.
// Unset hooks are no-ops.
type Hooks struct {
	// Celebrate fires once when payment completion is observed.
	Celebrate func()
	// ResetSession fires when no unpaid orders remain: the local session
	// was cleared and the view should reload from scratch.
	ResetSession func()
	// RefreshTracker fires when other orders are still open and only the
	// visible tracker should re-render.
	RefreshTracker func()
}

// SetHooks installs the payment side-effect hooks.
func (m *Machine) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

// SetPaymentPollInterval overrides the payment poll cadence (for config
// wiring and tests).
func (m *Machine) SetPaymentPollInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollInterval = d
}

// RequestCheckout asks for the bill: one server call transitions the
// session (not the cart) toward awaiting_tip/awaiting_payment, then the
// payment-completion poll starts.
func (m *Machine) RequestCheckout(ctx context.Context, sessionID int) error {
	endpoint := fmt.Sprintf("/api/sessions/%d/checkout", sessionID)
	if err := m.client.Do(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return fmt.Errorf("request checkout: %w", err)
	}

	m.setState(StateAwaitingTip)
	m.startPaymentPoll(ctx, sessionID)
	m.logger.Info("checkout requested", "session_id", sessionID)
	return nil
}

// payResponse is the wire shape of POST /api/sessions/{id}/pay.
type payResponse struct {
	RequiresConfirmation bool             `json:"requires_confirmation"`
	Session              *session.Session `json:"session"`
}

// PayResult reports the outcome of a digital payment attempt.
type PayResult struct {
	RequiresConfirmation bool
	SessionStatus        string
}

// Pay initiates a digital payment for the session, carrying any tip
// recorded on the tip screen. The payment gateway itself is an opaque
// external collaborator; the client only learns whether confirmation is
// still pending.
func (m *Machine) Pay(ctx context.Context, sessionID int, method string) (PayResult, error) {
	m.mu.Lock()
	tip := m.tipAmount
	m.mu.Unlock()

	body := map[string]any{"payment_method": method}
	if tip > 0 {
		body["tip_amount"] = tip
	}

	var resp payResponse
	endpoint := fmt.Sprintf("/api/sessions/%d/pay", sessionID)
	if err := m.client.Do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return PayResult{}, fmt.Errorf("pay session: %w", err)
	}

	result := PayResult{RequiresConfirmation: resp.RequiresConfirmation}
	if resp.Session != nil {
		result.SessionStatus = resp.Session.Status
	}
	return result, nil
}

// PaymentPollRunning reports whether the completion poll is active.
func (m *Machine) PaymentPollRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paymentPoll != nil && m.paymentPoll.IsRunning()
}

// StopPaymentPoll tears the completion poll down. Called on success and
// by the host on page unload/hide.
func (m *Machine) StopPaymentPoll() {
	m.mu.Lock()
	poll := m.paymentPoll
	m.mu.Unlock()
	if poll != nil {
		poll.Stop()
	}
}

func (m *Machine) startPaymentPoll(ctx context.Context, sessionID int) {
	m.mu.Lock()
	interval := m.pollInterval
	if interval <= 0 {
		interval = DefaultPaymentPollInterval
	}
	if m.paymentPoll != nil && m.paymentPoll.IsRunning() {
		m.mu.Unlock()
		return
	}
	task := sched.New("payment-poll", interval, func(tickCtx context.Context) error {
		return m.pollPayment(tickCtx, sessionID)
	}, m.logger)
	m.paymentPoll = task
	m.mu.Unlock()

	task.Start(ctx)
}

// sessionStatusResponse is the wire shape of GET /api/session/validate.
type sessionStatusResponse struct {
	Session *session.Session `json:"session"`
}

// pollPayment is one tick of the payment-completion poll.
func (m *Machine) pollPayment(ctx context.Context, sessionID int) error {
	var resp sessionStatusResponse
	if err := m.client.Do(ctx, http.MethodGet, "/api/session/validate", nil, &resp); err != nil {
		return err
	}
	if resp.Session == nil || resp.Session.Status != session.StatusPaid {
		return nil
	}

	// Paid observed: this poll's job is done. Stop from outside the tick
	// so Stop's wait for the in-flight tick cannot deadlock.
	go m.StopPaymentPoll()
	m.finishPayment(ctx, sessionID)
	return nil
}

// finishPayment decides between a full local reset and a tracker refresh.
//
// The decision query looks for any other unpaid orders under the same
// session. A failing query is treated conservatively as "do not reset" -
// wrongly resetting would eat a table's open orders, wrongly refreshing
// just shows a stale tracker for a few seconds.
func (m *Machine) finishPayment(ctx context.Context, sessionID int) {
	m.mu.Lock()
	hooks := m.hooks
	m.state = StateDone
	m.mu.Unlock()

	if hooks.Celebrate != nil {
		hooks.Celebrate()
	}

	result, err := orders.Fetch(ctx, m.client, sessionID)
	if err != nil {
		m.logger.Debug("unpaid-order query failed, keeping session", "error", err)
		if hooks.RefreshTracker != nil {
			hooks.RefreshTracker()
		}
		return
	}

	for _, o := range result.Orders {
		if o.IsOpen() {
			m.logger.Info("other orders still open, refreshing tracker",
				"session_id", sessionID, "order_id", o.ID)
			if hooks.RefreshTracker != nil {
				hooks.RefreshTracker()
			}
			return
		}
	}

	m.logger.Info("payment complete, resetting local session", "session_id", sessionID)
	m.sessions.Clear()
	if hooks.ResetSession != nil {
		hooks.ResetSession()
	}
}
