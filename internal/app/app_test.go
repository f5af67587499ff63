package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molder-opina/pronto-static-sub000/internal/cart"
	"github.com/molder-opina/pronto-static-sub000/internal/config"
	"github.com/molder-opina/pronto-static-sub000/internal/reconcile"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "client.db")
	return cfg
}

func TestNew_WiresComponents(t *testing.T) {
	a, err := New(testConfig(t), slog.Default(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Sessions)
	assert.NotNil(t, a.Cart)
	assert.NotNil(t, a.Checkout)
	assert.NotNil(t, a.Rec)
	assert.Equal(t, reconcile.ViewMenu, a.CurrentView())
}

func TestIdentity_SwitchesWithStoredProfile(t *testing.T) {
	a, err := New(testConfig(t), slog.Default(), Options{})
	require.NoError(t, err)
	defer a.Close()

	anon := a.Identity()
	assert.Contains(t, anon, "anon-")

	require.NoError(t, a.Durable.Set(storage.KeyProfile,
		storage.Profile{Email: "Diner@Example.com"}))
	assert.Equal(t, "diner@example.com", a.Identity())
}

func TestBlockedDurableStore_DegradesAndWarns(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "missing", "dir", "client.db")

	var warned []cart.Warning
	a, err := New(cfg, slog.Default(), Options{
		Warn: func(w cart.Warning) { warned = append(warned, w) },
	})
	require.NoError(t, err, "blocked durable store must not fail construction")
	defer a.Close()

	assert.Equal(t, []cart.Warning{cart.WarnBlocked}, warned)

	// The degraded store still works for the run.
	a.Cart.Add(cart.Item{MenuItemID: 1, UnitPrice: 5, Quantity: 1})
	assert.Len(t, a.Cart.Items(), 1)
}

func TestStartClose_TearsDownLoops(t *testing.T) {
	a, err := New(testConfig(t), slog.Default(), Options{})
	require.NoError(t, err)

	a.Start(context.Background())
	assert.True(t, a.Rec.Running())

	require.NoError(t, a.Close())
	assert.False(t, a.Rec.Running())
}

func TestSetView(t *testing.T) {
	a, err := New(testConfig(t), slog.Default(), Options{})
	require.NoError(t, err)
	defer a.Close()

	a.SetView(reconcile.ViewTracker)
	assert.Equal(t, reconcile.ViewTracker, a.CurrentView())
}
