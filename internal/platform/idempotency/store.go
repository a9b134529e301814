// Package idempotency guards checkout submissions against duplicate delivery.
// Clients send an Idempotency-Key header with each guarded request; the first
// request through runs the handler and records its response, and duplicates
// carrying the same key receive the recorded response back unchanged.
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

// DefaultTTL bounds how long a recorded response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused reports an idempotency key presented with a different request
// than the one that first claimed it.
var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// Outcome classifies a claim attempt.
type Outcome int

const (
	// OutcomeNew means the key was unclaimed; the caller runs the handler.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a recorded response exists and should be returned.
	OutcomeReplay
	// OutcomeInFlight means an earlier request holding this key has not
	// finished yet.
	OutcomeInFlight
)

// Reply is the recorded HTTP response handed back to duplicates.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// Claim identifies one guarded request attempt.
type Claim struct {
	Key         string
	Fingerprint string
	Now         time.Time
	TTL         time.Duration
}

func (c Claim) docID() string {
	return hashString(strings.TrimSpace(c.Key))
}

func (c Claim) expiry() time.Time {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return c.Now.UTC().Add(ttl)
}

// Store persists claims and their recorded replies.
type Store interface {
	Claim(ctx context.Context, c Claim) (Outcome, Reply, error)
	Complete(ctx context.Context, c Claim, reply Reply) error
	Abort(ctx context.Context, c Claim) error
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func hashBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// volatileHeaders are regenerated per response and never recorded.
var volatileHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Date":              {},
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Trailer":           {},
	"Upgrade":           {},
}

func recordableHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if _, skip := volatileHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneReply(reply Reply) Reply {
	out := Reply{Status: reply.Status, Header: recordableHeader(reply.Header)}
	if len(reply.Body) > 0 {
		out.Body = append([]byte(nil), reply.Body...)
	}
	return out
}
