// Package reconcile continuously re-derives displayed order and session
// state from the authoritative server, independent of user action.
//
// Two loops run while a session is active: a fixed-interval active-order
// refresh whose behavior branches on the currently visible view, and a
// session-expiry check whose interval is derived from the server-reported
// expiry and re-armed after every tick, never faster than a fixed floor.
// Either loop can force local session invalidation when the server
// reports the session missing, finished, or expired.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/orders"
	"github.com/molder-opina/pronto-static-sub000/internal/sched"
	"github.com/molder-opina/pronto-static-sub000/internal/session"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// View identifies which surface the diner is currently looking at. The
// order refresh publishes differently depending on it.
type View string

const (
	// ViewMenu: the diner is browsing; only open orders matter (badge).
	ViewMenu View = "menu"
	// ViewTracker: the diner watches order progress; publish everything.
	ViewTracker View = "tracker"
)

// Default polling cadence.
const (
	OrderRefreshInterval = 10 * time.Second
	ExpiryFloor          = 10 * time.Second
	expiryFallback       = 30 * time.Second
)

// Observers receive reconciled state. Unset observers are no-ops.
type Observers struct {
	// OnOrders delivers the orders to display, already normalized and
	// filtered for the visible view.
	OnOrders func([]orders.Order)
	// OnInvalidate fires when the local session was force-cleared.
	OnInvalidate func()
}

// Reconciler owns the order-refresh and session-expiry loops.
type Reconciler struct {
	client    *api.Client
	sessions  *session.Manager
	repo      *storage.Repo
	logger    *slog.Logger
	visible   func() View
	observers Observers
	now       func() time.Time

	orderTask  *sched.Task
	expiryTask *sched.Task

	mu         sync.Mutex
	lastExpiry *time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithOrderInterval overrides the order refresh cadence (for tests).
func WithOrderInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.orderTask = sched.New("order-refresh", d, r.orderTick, r.logger)
	}
}

// WithExpiryFloor overrides the expiry check floor (for tests).
func WithExpiryFloor(d time.Duration) Option {
	return func(r *Reconciler) {
		r.expiryTask = sched.NewDynamic("session-expiry", r.nextExpiryInterval, d, r.expiryTick, r.logger)
	}
}

// New creates a Reconciler. visible reports the current view and is
// consulted on every order tick.
func New(client *api.Client, sessions *session.Manager, repo *storage.Repo, visible func() View, observers Observers, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		client:    client,
		sessions:  sessions,
		repo:      repo,
		logger:    logger,
		visible:   visible,
		observers: observers,
		now:       time.Now,
	}
	r.orderTask = sched.New("order-refresh", OrderRefreshInterval, r.orderTick, logger)
	r.expiryTask = sched.NewDynamic("session-expiry", r.nextExpiryInterval, ExpiryFloor, r.expiryTick, logger)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches both loops.
func (r *Reconciler) Start(ctx context.Context) {
	r.orderTask.Start(ctx)
	r.expiryTask.Start(ctx)
}

// Stop tears both loops down. They will not re-arm.
func (r *Reconciler) Stop() {
	r.orderTask.Stop()
	r.expiryTask.Stop()
}

// Running reports whether the order loop is active.
func (r *Reconciler) Running() bool {
	return r.orderTask.IsRunning()
}

// DismissCancelled records that the user dismissed a cancelled order, so
// it is not surfaced again.
func (r *Reconciler) DismissCancelled(orderID int) {
	dismissed := r.dismissedSet()
	dismissed[orderID] = true

	ids := make([]int, 0, len(dismissed))
	for id := range dismissed {
		ids = append(ids, id)
	}
	if err := r.repo.Set(storage.KeyDismissedOrders, ids); err != nil {
		r.logger.Debug("persisting dismissed orders failed", "error", err)
	}
}

func (r *Reconciler) dismissedSet() map[int]bool {
	var ids []int
	r.repo.Get(storage.KeyDismissedOrders, &ids)
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// orderTick is one pass of the active-order refresh.
func (r *Reconciler) orderTick(ctx context.Context) error {
	id, ok := r.sessions.SessionID()
	if !ok {
		r.publish(nil)
		return nil
	}

	result, err := orders.Fetch(ctx, r.client, id)
	if err != nil {
		if api.IsNotFound(err) {
			// Stale session id: the server no longer knows it. Clear and
			// fall back to "no active orders" without surfacing an error.
			r.logger.Info("session unknown to server, clearing", "session_id", id)
			r.invalidate()
			return nil
		}
		return err
	}

	if result.Session != nil && sessionFinished(result.Session.Status) {
		r.logger.Info("session finished server-side, clearing",
			"session_id", id, "status", result.Session.Status)
		r.invalidate()
		return nil
	}

	r.publish(r.visibleOrders(result.Orders))
	return nil
}

// visibleOrders applies the view branch and the dismissed-cancelled
// filter.
func (r *Reconciler) visibleOrders(all []orders.Order) []orders.Order {
	dismissed := r.dismissedSet()
	menuOnly := r.visible() == ViewMenu

	var out []orders.Order
	for _, o := range all {
		if dismissed[o.ID] {
			continue
		}
		if menuOnly && !o.IsOpen() {
			// Browsing view only needs the open-order badge.
			continue
		}
		out = append(out, o)
	}
	return out
}

func (r *Reconciler) publish(list []orders.Order) {
	if r.observers.OnOrders != nil {
		r.observers.OnOrders(list)
	}
}

func (r *Reconciler) invalidate() {
	r.sessions.Clear()
	r.publish(nil)
	if r.observers.OnInvalidate != nil {
		r.observers.OnInvalidate()
	}
}

// expiryTick asks the server when the session times out and invalidates
// once that moment has passed.
func (r *Reconciler) expiryTick(ctx context.Context) error {
	id, ok := r.sessions.SessionID()
	if !ok {
		return nil
	}

	expiresAt, err := r.sessions.Timeout(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			r.invalidate()
			return nil
		}
		return err
	}

	r.mu.Lock()
	r.lastExpiry = expiresAt
	r.mu.Unlock()

	if expiresAt != nil && !r.now().Before(*expiresAt) {
		r.logger.Info("session expired server-side, clearing", "session_id", id)
		r.invalidate()
	}
	return nil
}

// nextExpiryInterval derives the next check delay from the last reported
// expiry: half the remaining lifetime, so the check tightens as the
// deadline approaches. The task's floor keeps it from going hot.
func (r *Reconciler) nextExpiryInterval() time.Duration {
	r.mu.Lock()
	expiry := r.lastExpiry
	r.mu.Unlock()

	if expiry == nil {
		return expiryFallback
	}
	remaining := expiry.Sub(r.now())
	if remaining <= 0 {
		return 0 // floor applies
	}
	return remaining / 2
}

func sessionFinished(status string) bool {
	switch status {
	case session.StatusPaid, session.StatusClosed, session.StatusCancelled:
		return true
	}
	return false
}
