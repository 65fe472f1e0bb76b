// Package idempotency makes order creation and the other mutating checkout calls safe to retry:
// the first response for an Idempotency-Key is stored and replayed, together with the order it
// produced, to every retry that carries the same key and body.
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

// DefaultTTL is how long a key is remembered, covering a full checkout retry window.
const DefaultTTL = 24 * time.Hour

// Status represents the lifecycle state of an idempotency record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve an idempotency key.
type ReservationState int

const (
	// ReservationStateNew lets the caller run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted carries a stored response to replay.
	ReservationStateCompleted
	// ReservationStatePending means another request is still running under the key.
	ReservationStatePending
)

// Reservation is the result of Reserve; Record is set for every state.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one stored key. OrderID names the order the first response created or acted on
// and is empty for calls that never resolved one.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	OrderID         string
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what SaveResponse persists for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	OrderID string
}

// Store persists idempotency reservations and responses. The memory, Postgres and Firestore
// implementations share the same semantics: an expired key reserves as new, a key reused with
// another fingerprint fails with ErrFingerprintMismatch, and Release only drops a key held by
// the same fingerprint.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when an idempotency key is reused with a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// keyHash is the storage id of a scoped key. The fingerprint is deliberately left out so a
// reused key with a different body collides and is reported as a mismatch.
func keyHash(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newPending(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func expired(record Record, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// replayableHeaders drops hop-by-hop and length headers that must not be replayed.
func replayableHeaders(header http.Header) map[string][]string {
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Proxy-Authenticate",
			"Proxy-Authorization", "Te", "Trailers", "Transfer-Encoding", "Upgrade", replayHeaderName:
			continue
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func cloneBody(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	return append([]byte(nil), body...)
}
