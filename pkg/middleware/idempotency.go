package middleware

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
	apperrors "vaxslot/pkg/errors"
	httputil "vaxslot/pkg/http"

	"github.com/zeebo/blake3"
)

const ReplayedHeader = "Idempotent-Replayed"

var (
	ErrKeyInFlight         = errors.New("idempotency key is in flight")
	ErrFingerprintMismatch = errors.New("idempotency key reused with a different request")
)

// IdempotencyStore tracks one outcome per key. Begin claims an unused key,
// returns the stored response for a completed one, and refuses a key that is
// still being served or was first used for a different request.
type IdempotencyStore interface {
	Begin(key, fingerprint string) (*CachedResponse, error)
	Complete(key string, response *CachedResponse)
	Abandon(key string)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

type idempotencyEntry struct {
	fingerprint string
	response    *CachedResponse
	createdAt   time.Time
}

type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*idempotencyEntry
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]*idempotencyEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go s.sweep(min(ttl, time.Hour))
	return s
}

func (s *InMemoryIdempotencyStore) Begin(key, fingerprint string) (*CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if ok && now.Sub(e.createdAt) > s.ttl {
		delete(s.entries, key)
		ok = false
	}
	if !ok {
		s.entries[key] = &idempotencyEntry{fingerprint: fingerprint, createdAt: now}
		return nil, nil
	}

	switch {
	case e.fingerprint != fingerprint:
		return nil, ErrFingerprintMismatch
	case e.response == nil:
		return nil, ErrKeyInFlight
	default:
		return e.response, nil
	}
}

func (s *InMemoryIdempotencyStore) Complete(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.response = response
		e.createdAt = s.now()
	}
}

// Abandon frees the key so the caller can retry after a failed attempt.
func (s *InMemoryIdempotencyStore) Abandon(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.response == nil {
		delete(s.entries, key)
	}
}

func (s *InMemoryIdempotencyStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, e := range s.entries {
				if e.response != nil && now.Sub(e.createdAt) > s.ttl {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated key.
// Keys are scoped by caller, method and path so two callers reusing the same
// key never see each other's responses. A key replayed with a different body
// is rejected, as is a key whose first request has not finished.
func Idempotency(store IdempotencyStore, headerName string, scope KeyExtractor) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "Idempotency-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := idempotencyKey(r, headerName, scope)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					_ = httputil.WriteError(w, apperrors.New(apperrors.CodeBadRequest, "Request body too large", http.StatusRequestEntityTooLarge))
					return
				}
				_ = httputil.WriteError(w, apperrors.InvalidInput("Failed to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			cached, err := store.Begin(key, fingerprint(r, body))
			switch {
			case errors.Is(err, ErrKeyInFlight):
				_ = httputil.WriteError(w, apperrors.New(apperrors.CodeConflict,
					"A request with this Idempotency-Key is still in progress", http.StatusConflict))
				return
			case errors.Is(err, ErrFingerprintMismatch):
				_ = httputil.WriteError(w, apperrors.New(apperrors.CodeConflict,
					"Idempotency-Key was already used for a different request", http.StatusUnprocessableEntity))
				return
			case cached != nil:
				replay(w, cached)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			served := false
			defer func() {
				if !served {
					store.Abandon(key)
				}
			}()
			next.ServeHTTP(capture, r)
			served = true

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				store.Abandon(key)
				return
			}
			store.Complete(key, &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    w.Header().Clone(),
				Body:       capture.body.Bytes(),
			})
		})
	}
}

func idempotencyKey(r *http.Request, headerName string, scope KeyExtractor) string {
	key := r.Header.Get(headerName)
	if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ""
	}
	caller := ""
	if scope != nil {
		caller = scope(r)
	}
	return caller + "|" + r.Method + " " + r.URL.Path + "|" + key
}

func fingerprint(r *http.Request, body []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(r.URL.RawQuery))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		if key == RequestIDHeader {
			continue
		}
		w.Header()[key] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
