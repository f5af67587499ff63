// Package storage is the single home of persisted client state.
//
// All keys (session id, anonymous client id, carts, profile, dismissed
// orders) go through one typed repository with JSON codecs and a schema
// version embedded in every key. Two tiers exist: a durable SQLite-backed
// store that survives restarts, and a volatile in-memory store scoped to
// the current process run.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel classification for write failures. Callers degrade differently
// on each: quota clears the offending value and warns the user, blocked
// drops to in-memory operation.
var (
	// ErrQuotaExceeded indicates the backing store is out of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrBlocked indicates the backing store refuses writes entirely
	// (read-only database, denied file permissions).
	ErrBlocked = errors.New("storage blocked")
)

// IsQuotaExceeded reports whether err classifies as an out-of-space failure.
func IsQuotaExceeded(err error) bool { return errors.Is(err, ErrQuotaExceeded) }

// IsBlocked reports whether err classifies as a blocked-store failure.
func IsBlocked(err error) bool { return errors.Is(err, ErrBlocked) }

// Backend is a flat string key-value store. Implementations: SQLite
// (durable tier) and Memory (volatile tier).
type Backend interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (string, bool, error)

	// Set stores a value. Failures are classified via ErrQuotaExceeded
	// and ErrBlocked where the backend can tell.
	Set(key, value string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases backend resources.
	Close() error
}

// classifySQLiteError maps driver failures onto the storage taxonomy.
// go-sqlite3 error codes are matched by message to avoid depending on the
// driver's cgo error types outside this package.
func classifySQLiteError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database or disk is full"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case strings.Contains(msg, "readonly database"),
		strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	return err
}
