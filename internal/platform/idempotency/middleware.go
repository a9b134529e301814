package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trimline-home/api/internal/platform/auth"
	"github.com/trimline-home/api/internal/platform/httpx"
)

const (
	// KeyHeader carries the client-chosen idempotency key.
	KeyHeader = "Idempotency-Key"
	// ReplayHeader marks a response served from the store.
	ReplayHeader = "X-Idempotent-Replay"
)

// Logger receives persistence failures the middleware cannot surface to the
// client. Satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type guard struct {
	store   Store
	header  string
	ttl     time.Duration
	methods map[string]struct{}
	clock   func() time.Time
	logger  Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*guard)

// WithHeader overrides the key header name.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL bounds how long recorded responses replay.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods restricts which HTTP methods are guarded.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

// WithLogger routes persistence failures to the given logger.
func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) { g.logger = logger }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Middleware enforces idempotency on mutating requests routed through it. A
// nil store disables the guard.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	g := &guard{
		store:   store,
		header:  KeyHeader,
		ttl:     DefaultTTL,
		methods: map[string]struct{}{http.MethodPost: {}},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := g.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(g.header))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+g.header+" header", http.StatusBadRequest))
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	uid := requesterUID(r)
	claim := Claim{
		Key:         uid + "/" + key,
		Fingerprint: fingerprint(r, uid, body),
		Now:         g.clock().UTC(),
		TTL:         g.ttl,
	}

	outcome, stored, err := g.store.Claim(ctx, claim)
	if err != nil {
		g.writeClaimError(w, r, err)
		return
	}

	switch outcome {
	case OutcomeReplay:
		writeReply(w, stored)
		return
	case OutcomeInFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still processing", http.StatusConflict))
		return
	}

	capture := newCaptureWriter()
	next.ServeHTTP(capture, r)

	claim.Now = g.clock().UTC()
	if err := g.store.Complete(ctx, claim, capture.reply()); err != nil {
		g.logf("idempotency: record response for key %s: %v", key, err)
		if abortErr := g.store.Abort(ctx, claim); abortErr != nil {
			g.logf("idempotency: release key %s: %v", key, abortErr)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to record idempotent response", http.StatusInternalServerError))
		return
	}

	if err := capture.flush(w); err != nil {
		g.logf("idempotency: flush response for key %s: %v", key, err)
	}
}

func (g *guard) writeClaimError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, ErrKeyReused) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was already used for a different request", http.StatusConflict))
		return
	}
	g.logf("idempotency: claim failed: %v", err)
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

// bufferBody drains the request body and puts a rewound copy back so the
// handler still sees it.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterUID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

// fingerprint ties a key to the request that first used it, so a reused key
// with different content is rejected rather than replayed.
func fingerprint(r *http.Request, uid string, body []byte) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		uid,
		hashBytes(body),
	}
	return hashString(strings.Join(parts, "\x00"))
}

func writeReply(w http.ResponseWriter, reply Reply) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range reply.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set(ReplayHeader, "true")

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(reply.Body) > 0 {
		_, _ = w.Write(reply.Body)
	}
}

// captureWriter buffers the handler's response so it can be recorded before
// anything reaches the client.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 && status > 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) reply() Reply {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return Reply{Status: status, Header: c.header, Body: c.body.Bytes()}
}

func (c *captureWriter) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range c.header {
		dst[name] = values
	}

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if c.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(c.body.Bytes())
	return err
}
