package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molder-opina/pronto-static-sub000/internal/api"
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
	"github.com/molder-opina/pronto-static-sub000/internal/session"
	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// orderServer fakes POST /api/orders and records received payloads.
type orderServer struct {
	mu       sync.Mutex
	payloads []orderPayload
	fail     bool
	failBody string
	block    chan struct{} // when set, handler waits before responding
	digital  bool
}

func (o *orderServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if o.block != nil {
			<-o.block
		}
		var p orderPayload
		json.NewDecoder(r.Body).Decode(&p)
		o.mu.Lock()
		o.payloads = append(o.payloads, p)
		o.mu.Unlock()

		if o.fail {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(o.failBody))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": 501,
			"session_summary": map[string]any{
				"status":                    "open",
				"digital_payment_available": o.digital,
			},
		})
	}
}

func (o *orderServer) received() []orderPayload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]orderPayload{}, o.payloads...)
}

type fixture struct {
	machine *Machine
	cart    *cart.Store
	repo    *storage.Repo
	manager *session.Manager
	server  *orderServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	os := &orderServer{}
	srv := httptest.NewServer(os.handler())
	t.Cleanup(srv.Close)

	client := api.New(srv.URL, slog.Default())
	repo := storage.NewRepo(storage.NewMemory(), slog.Default())
	volatile := storage.NewRepo(storage.NewMemory(), slog.Default())
	manager := session.NewManager(repo, client, slog.Default(),
		session.WithIdentGenerator(session.NewFixedGenerator("anon-fix-1")))

	identity := func() string {
		var p storage.Profile
		if repo.Get(storage.KeyProfile, &p) && p.Email != "" {
			return cart.NormalizeEmail(p.Email)
		}
		return manager.AnonymousID()
	}
	cartStore := cart.NewStore(repo, volatile, identity, slog.Default())
	m := NewMachine(client, manager, cartStore, repo, slog.Default())
	return &fixture{machine: m, cart: cartStore, repo: repo, manager: manager, server: os}
}

func addItem(c *cart.Store) {
	c.Add(cart.Item{MenuItemID: 1, Name: "pizza", UnitPrice: 12.5, Quantity: 1,
		SelectedModifierIDs: []int{3, 4}, ModifierPriceTotal: 2})
}

func TestSubmit_EmptyCartRejectedBeforeNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, f.server.received(), "no network call for an empty cart")
	assert.Empty(t, f.cart.Items(), "cart unchanged")
	assert.Equal(t, StateIdle, f.machine.State())
}

func TestSubmit_PhoneValidation(t *testing.T) {
	f := newFixture(t)
	addItem(f.cart)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{CustomerPhone: "12345"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, f.server.received())

	// Absent phone is allowed.
	_, err = f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.NoError(t, err)

	addItem(f.cart)
	_, err = f.machine.Submit(context.Background(), SubmitRequest{CustomerPhone: "5551234567"})
	require.NoError(t, err)
}

func TestSubmit_SuccessClearsCartAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.server.digital = true
	addItem(f.cart)

	var notified []SubmitResult
	f.machine.SubscribeSuccess(func(r SubmitResult) { notified = append(notified, r) })

	result, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.NoError(t, err)

	assert.Equal(t, 501, result.SessionID)
	assert.True(t, result.DigitalPaymentAvailable)
	assert.Empty(t, f.cart.Items(), "cart cleared on success")
	assert.Equal(t, []SubmitResult{result}, notified)
	assert.Equal(t, StateSuccess, f.machine.State())
	assert.True(t, f.machine.DigitalPaymentAvailable())

	id, ok := f.manager.SessionID()
	assert.True(t, ok)
	assert.Equal(t, 501, id, "returned session id persisted")
}

func TestSubmit_FailureKeepsCartAndReleasesLatch(t *testing.T) {
	f := newFixture(t)
	f.server.fail = true
	f.server.failBody = `{"error":"kitchen closed"}`
	addItem(f.cart)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kitchen closed")
	assert.Len(t, f.cart.Items(), 1, "cart never cleared on failure")
	assert.Equal(t, StateIdle, f.machine.State())

	// Latch released: a retry reaches the network again.
	f.server.fail = false
	_, err = f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.NoError(t, err)
	assert.Len(t, f.server.received(), 2)
}

func TestSubmit_SecondConcurrentCallRejected(t *testing.T) {
	f := newFixture(t)
	f.server.block = make(chan struct{})
	addItem(f.cart)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
		firstDone <- err
	}()

	// Wait until the first submission holds the latch.
	waitForLatch(t, f.machine)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	assert.ErrorIs(t, err, ErrSubmissionInFlight, "second call rejected synchronously")

	close(f.server.block)
	require.NoError(t, <-firstDone)
	assert.Len(t, f.server.received(), 1, "exactly one network submission")
}

func waitForLatch(t *testing.T, m *Machine) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if m.inFlight.Load() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("latch never taken")
}

func TestSubmit_AnonymousIDOmittedWhenEmailResolved(t *testing.T) {
	f := newFixture(t)
	addItem(f.cart)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{
		CustomerName: "Ada", CustomerEmail: "ada@example.com", TableNumber: 4})
	require.NoError(t, err)

	payloads := f.server.received()
	require.Len(t, payloads, 1)
	assert.Empty(t, payloads[0].AnonymousClientID)
	assert.Equal(t, "ada@example.com", payloads[0].Customer.Email)
}

func TestSubmit_AnonymousIDPresentWithoutEmail(t *testing.T) {
	f := newFixture(t)
	addItem(f.cart)

	_, err := f.machine.Submit(context.Background(), SubmitRequest{TableNumber: 4})
	require.NoError(t, err)

	payloads := f.server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "anon-fix-1", payloads[0].AnonymousClientID)
}

func TestSubmit_StoredProfileBeatsAnonymousButNotForm(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Set(storage.KeyProfile,
		storage.Profile{Name: "Stored", Email: "stored@example.com"}))
	addItem(f.cart)

	// Form input wins over the stored profile.
	_, err := f.machine.Submit(context.Background(), SubmitRequest{
		CustomerEmail: "form@example.com", TableNumber: 4})
	require.NoError(t, err)

	payloads := f.server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "form@example.com", payloads[0].Customer.Email)
	assert.Equal(t, "Stored", payloads[0].Customer.Name, "profile fills fields the form left blank")
	assert.Empty(t, payloads[0].AnonymousClientID)
}

func TestSubmitTipAndTicketChoiceAdvanceFlow(t *testing.T) {
	f := newFixture(t)

	f.machine.SubmitTip(3.50)
	assert.Equal(t, StateAwaitingTicketChoice, f.machine.State())

	f.machine.ChooseTicket("email")
	assert.Equal(t, StateDone, f.machine.State())
}
