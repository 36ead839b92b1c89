package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a completed order submission stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a stored submission.
type State string

const (
	// StatePending means a request holds the submission and has not produced a response yet.
	StatePending State = "pending"
	// StateCompleted means the response is stored and repeats are answered from it.
	StateCompleted State = "completed"
)

// ErrFingerprintMismatch is returned when a key is reused by the same caller for a different payload.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// Submission identifies one guarded request: the client's Idempotency-Key, the caller it is scoped to,
// and a digest of what was sent.
type Submission struct {
	Key         string
	Requester   string
	Fingerprint string
}

// ID is the storage identifier. Two callers reusing the same key never collide.
func (s Submission) ID() string {
	return digest([]byte(s.Requester + "\x00" + s.Key))
}

// Response is a captured handler response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Record is a stored submission and, once completed, its response.
type Record struct {
	Submission
	State     State
	Response  Response
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists submissions. Claim must be atomic: of two concurrent claims on one submission only
// one may acquire it.
type Store interface {
	// Claim reserves sub for the caller. When acquired is false, rec holds the pending or completed
	// record left by an earlier request.
	Claim(ctx context.Context, sub Submission, now time.Time, ttl time.Duration) (rec Record, acquired bool, err error)
	Complete(ctx context.Context, sub Submission, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, sub Submission) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hopByHop headers describe the original connection and are not replayed.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopByHop[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

func withTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
