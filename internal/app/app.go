// Package app wires the client together: storage tiers, request client,
// session manager, cart store, checkout machine, and reconciler are
// constructed once into an explicit App value and injected where needed.
// There is no package-level mutable state anywhere in the module; tests
// construct as many isolated Apps as they like.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
	"github.com/molder-opina/pronto-static-sub000/internal/checkout"
	"github.com/molder-opina/pronto-static-sub000/internal/config"
	"github.com/molder-opina/pronto-static-sub000/internal/reconcile"
	"github.com/molder-opina/pronto-static-sub000/internal/session"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// App owns every long-lived component of the client.
type App struct {
	Config   config.Config
	Client   *api.Client
	Durable  *storage.Repo
	Volatile *storage.Repo
	Sessions *session.Manager
	Cart     *cart.Store
	Checkout *checkout.Machine
	Rec      *reconcile.Reconciler

	logger *slog.Logger

	mu   sync.Mutex
	view reconcile.View
}

// Options carries the host-provided callbacks.
type Options struct {
	// Warn receives cart storage degradation warnings.
	Warn cart.WarnFunc
	// Observers receive reconciled order/session state.
	Observers reconcile.Observers
	// Hooks receive payment flow side effects.
	Hooks checkout.Hooks
}

// New constructs a fully wired App from configuration.
//
// A durable store that cannot be opened (blocked path, read-only volume)
// does not fail construction: the client degrades to in-memory state for
// the run, matching the cart store's write-time policy.
func New(cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var durableBackend storage.Backend
	sqlite, err := storage.OpenSQLite(cfg.Storage.Path)
	switch {
	case err == nil:
		durableBackend = sqlite
	case storage.IsBlocked(err):
		logger.Error("durable storage unavailable, running in memory", "error", err)
		durableBackend = storage.NewMemory()
		if opts.Warn != nil {
			opts.Warn(cart.WarnBlocked)
		}
	default:
		return nil, err
	}

	durable := storage.NewRepo(durableBackend, logger)
	volatile := storage.NewRepo(storage.NewMemory(), logger)

	client := api.New(cfg.Server.BaseURL, logger,
		api.WithRetryPolicy(cfg.Retry.MaxRetries, cfg.BackoffBase()))

	sessions := session.NewManager(durable, client, logger)

	a := &App{
		Config:   cfg,
		Client:   client,
		Durable:  durable,
		Volatile: volatile,
		Sessions: sessions,
		logger:   logger,
		view:     reconcile.ViewMenu,
	}

	cartOpts := []cart.Option{cart.WithReprobeBlocked(cfg.Storage.ReprobeBlocked)}
	if opts.Warn != nil {
		cartOpts = append(cartOpts, cart.WithWarnFunc(opts.Warn))
	}
	a.Cart = cart.NewStore(durable, volatile, a.Identity, logger, cartOpts...)

	a.Checkout = checkout.NewMachine(client, sessions, a.Cart, durable, logger)
	a.Checkout.SetPaymentPollInterval(cfg.PaymentPoll())
	a.Checkout.SetHooks(opts.Hooks)

	a.Rec = reconcile.New(client, sessions, durable, a.CurrentView, opts.Observers, logger,
		reconcile.WithOrderInterval(cfg.OrderRefresh()),
		reconcile.WithExpiryFloor(cfg.ExpiryFloor()))

	return a, nil
}

// Identity resolves the current cart scope: normalized email when a
// stored profile is known, the anonymous client identifier otherwise.
func (a *App) Identity() string {
	var profile storage.Profile
	if a.Durable.Get(storage.KeyProfile, &profile) && profile.Email != "" {
		return cart.NormalizeEmail(profile.Email)
	}
	return a.Sessions.AnonymousID()
}

// CurrentView reports which surface is visible.
func (a *App) CurrentView() reconcile.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// SetView switches the visible surface; the next order tick adapts.
func (a *App) SetView(v reconcile.View) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

// Start launches the polling loops.
func (a *App) Start(ctx context.Context) {
	a.Rec.Start(ctx)
}

// Close tears down polls and releases storage. Safe to call once.
func (a *App) Close() error {
	a.Rec.Stop()
	a.Checkout.StopPaymentPoll()
	a.Volatile.Close()
	return a.Durable.Close()
}
