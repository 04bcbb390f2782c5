// Package idempotency replays the first response of a create request retried with the same
// Idempotency-Key, so a client retrying checkout never places two orders.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateCompleted means a stored response is available for replay.
	StateCompleted
	// StatePending means another request holding the key is still running.
	StatePending
)

// ErrFingerprintMismatch reports a key reused for a different request body or path.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// Record is the stored response for a key.
type Record struct {
	Fingerprint string
	Completed   bool
	Status      int
	Headers     map[string][]string
	Body        []byte
	ExpiresAt   time.Time
}

// Store persists reservations. Keys passed in are already scoped to the requesting principal.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key string, record Record, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func docID(key string) string {
	return sha256Hex([]byte(key))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeaders drops hop-by-hop and per-response headers before a record is stored.
func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "x-request-id":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
