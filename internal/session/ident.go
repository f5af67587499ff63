package session

import (
	"sync"

	"github.com/google/uuid"
)

// IdentGenerator produces anonymous client identifiers.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IdentGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable anonymous identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by the moment the device first attributed an order. The "anon-"
// prefix keeps them visually distinct from session ids in logs and
// server-side reports.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new anonymous identifier.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return "anon-" + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
// Panics when all ids are consumed - a fail-fast signal that a test
// generated more identities than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("session: FixedGenerator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
