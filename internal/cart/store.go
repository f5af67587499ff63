// Package cart owns the locally persisted shopping cart.
//
// The cart is scoped to a storage key derived from the resolved identity
// (normalized email for known customers, anonymous client id otherwise)
// and written through two tiers on every mutation: a volatile
// process-scoped mirror for cross-navigation continuity and a durable
// identity-keyed store that survives restarts. Reads prefer the volatile
// tier and re-seed it from the durable one.
//
// Storage failures never escape a mutation. Quota exhaustion clears the
// cart and warns the user to remove items; a blocked store degrades to
// volatile-only operation with a single warning; anything else is logged
// and swallowed.
package cart

import (
	"log/slog"
	"sync"
	"time"

	"github.com/molder-opina/pronto-static-sub000/internal/storage"
)

// Item is one cart line. Quantity is always positive; a line reaching zero
// is removed, never retained.
type Item struct {
	MenuItemID          int       `json:"menu_item_id"`
	Name                string    `json:"name"`
	UnitPrice           float64   `json:"unit_price"`
	Quantity            int       `json:"quantity"`
	ImageRef            string    `json:"image_ref,omitempty"`
	SelectedModifierIDs []int     `json:"selected_modifier_ids,omitempty"`
	ModifierNames       []string  `json:"modifier_names,omitempty"`
	ModifierPriceTotal  float64   `json:"modifier_price_total"`
	AddedAt             time.Time `json:"added_at"`
}

// LineTotal is the price of the line: (unit + modifiers) x quantity.
func (i Item) LineTotal() float64 {
	return (i.UnitPrice + i.ModifierPriceTotal) * float64(i.Quantity)
}

// Warning identifies a storage degradation surfaced to the user.
type Warning string

const (
	// WarnQuota: durable store out of space, cart was cleared.
	WarnQuota Warning = "storage_quota_exceeded"
	// WarnBlocked: durable store refuses writes, operating in memory only.
	WarnBlocked Warning = "storage_blocked"
)

// WarnFunc receives storage degradation warnings for user display.
type WarnFunc func(Warning)

// Store is the singleton cart store for one client context.
type Store struct {
	durable  *storage.Repo
	volatile *storage.Repo
	identity func() string
	logger   *slog.Logger
	now      func() time.Time
	warn     WarnFunc

	mu            sync.Mutex
	blocked       bool // durable tier degraded for this run
	warnedBlocked bool
	reprobe       bool // whether to retry a blocked durable tier
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the add-time source (for staleness tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWarnFunc installs the user-warning callback.
func WithWarnFunc(warn WarnFunc) Option {
	return func(s *Store) { s.warn = warn }
}

// WithReprobeBlocked controls whether a blocked durable tier is retried on
// later mutations. Default false: once blocked, volatile-only for the rest
// of the run.
func WithReprobeBlocked(reprobe bool) Option {
	return func(s *Store) { s.reprobe = reprobe }
}

// NewStore creates a cart store over the two storage tiers. identity
// resolves the current cart scope and is consulted on every call, so an
// identity switch immediately changes which cart is in view.
func NewStore(durable, volatile *storage.Repo, identity func() string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		durable:  durable,
		volatile: volatile,
		identity: identity,
		logger:   logger,
		now:      time.Now,
		warn:     func(Warning) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Items returns the current cart contents.
//
// The volatile mirror takes precedence when present; otherwise the durable
// cart is loaded and re-seeded into the mirror.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add appends an item, stamping its add time.
func (s *Store) Add(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.AddedAt = s.now()
	items := append(s.load(), item)
	s.save(items)
}

// UpdateQuantity adjusts the quantity of the line at index by delta.
// A resulting quantity of zero or less removes the line. Out-of-range
// indexes are ignored.
func (s *Store) UpdateQuantity(index, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load()
	if index < 0 || index >= len(items) {
		return
	}
	items[index].Quantity += delta
	if items[index].Quantity <= 0 {
		items = append(items[:index], items[index+1:]...)
	}
	s.save(items)
}

// Remove deletes the line at index. Out-of-range indexes are ignored.
func (s *Store) Remove(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load()
	if index < 0 || index >= len(items) {
		return
	}
	s.save(append(items[:index], items[index+1:]...))
}

// Clear empties the cart in both tiers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// TotalCount returns the summed quantity across lines.
func (s *Store) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, item := range s.load() {
		total += item.Quantity
	}
	return total
}

// TotalPrice returns the cart total: sum of line totals.
func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0.0
	for _, item := range s.load() {
		total += item.LineTotal()
	}
	return total
}

// OldItems returns lines whose add time is older than maxAge.
func (s *Store) OldItems(maxAge time.Duration) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	var old []Item
	for _, item := range s.load() {
		if item.AddedAt.Before(cutoff) {
			old = append(old, item)
		}
	}
	return old
}

// HasOldItems reports whether any line is older than maxAge.
func (s *Store) HasOldItems(maxAge time.Duration) bool {
	return len(s.OldItems(maxAge)) > 0
}

// ClearOldItems drops lines older than maxAge, keeping the rest.
func (s *Store) ClearOldItems(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	items := s.load()
	kept := items[:0]
	for _, item := range items {
		if !item.AddedAt.Before(cutoff) {
			kept = append(kept, item)
		}
	}
	s.save(kept)
}

// load reads the cart under the current identity key.
func (s *Store) load() []Item {
	key := storage.CartKey(s.identity())

	var items []Item
	if s.volatile.Get(key, &items) {
		return items
	}
	if s.durable.Get(key, &items) {
		// Re-seed the mirror for the rest of this browsing session.
		if err := s.volatile.Set(key, items); err != nil {
			s.logger.Debug("re-seeding volatile cart failed", "error", err)
		}
		return items
	}
	return nil
}

// save writes the cart through both tiers and applies the degradation
// policy on durable failure. Never returns an error.
func (s *Store) save(items []Item) {
	key := storage.CartKey(s.identity())

	if err := s.volatile.Set(key, items); err != nil {
		s.logger.Debug("volatile cart write failed", "error", err)
	}

	if s.blocked && !s.reprobe {
		return
	}

	err := s.durable.Set(key, items)
	switch {
	case err == nil:
		s.blocked = false
	case storage.IsQuotaExceeded(err):
		s.logger.Error("cart write exceeded storage quota, clearing cart", "error", err)
		s.clearLocked()
		s.warn(WarnQuota)
	case storage.IsBlocked(err):
		s.blocked = true
		if !s.warnedBlocked {
			s.warnedBlocked = true
			s.logger.Error("durable storage blocked, cart held in memory only", "error", err)
			s.warn(WarnBlocked)
		}
	default:
		s.logger.Error("cart write failed", "error", err)
	}
}

func (s *Store) clearLocked() {
	key := storage.CartKey(s.identity())
	s.volatile.Delete(key)
	s.durable.Delete(key)
}
