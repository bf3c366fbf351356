package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour
	// DefaultReservationTTL bounds how long an abandoned in-flight key
	// blocks retries.
	DefaultReservationTTL = 2 * time.Minute
)

// CachedResponse is a stored reply to a write carrying an Idempotency-Key.
type CachedResponse struct {
	Method     string      `json:"method"`
	Path       string      `json:"path"`
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// IdempotencyStore keeps completed replies and in-flight reservations. Get
// reports only completed replies.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	// Reserve claims key for a request that is about to run. It returns false
	// when the key is already reserved or completed.
	Reserve(ctx context.Context, key string) (bool, error)
	// Release drops a reservation so the write can be retried.
	Release(ctx context.Context, key string) error
	Set(ctx context.Context, key string, resp *CachedResponse) error
}

type MemoryIdempotencyStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	reserveTTL time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	resp      CachedResponse
	pending   bool
	expiresAt time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryIdempotencyStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		reserveTTL: DefaultReservationTTL,
		now:        time.Now,
	}
}

// live returns the unexpired entry for key. Callers hold s.mu.
func (s *MemoryIdempotencyStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.pending {
		return nil, false, nil
	}
	cp := e.resp
	cp.Headers = e.resp.Headers.Clone()
	cp.Body = append([]byte(nil), e.resp.Body...)
	return &cp, true, nil
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{pending: true, expiresAt: s.now().Add(s.reserveTTL)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.pending {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key string, resp *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	cp := *resp
	cp.Headers = resp.Headers.Clone()
	cp.Body = append([]byte(nil), resp.Body...)
	s.entries[key] = memoryEntry{resp: cp, expiresAt: now.Add(s.ttl)}
	return nil
}

// RedisIdempotencyStore shares cached replies across server instances. A
// reservation is a placeholder value written with SETNX.
type RedisIdempotencyStore struct {
	client     *redis.Client
	ttl        time.Duration
	reserveTTL time.Duration
	prefix     string
}

const redisPendingMarker = "pending"

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, reserveTTL: DefaultReservationTTL, prefix: "idempotency:"}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	if string(raw) == redisPendingMarker {
		return nil, false, nil
	}
	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, redisPendingMarker, s.reserveTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only while it still holds the placeholder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.prefix + key}, redisPendingMarker).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, resp *CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Keys are scoped to tenant and caller. A key is reserved
// while its request runs, and a repeat during that time gets 409. Failed
// writes release the key so the client may retry them.
func Idempotency(store IdempotencyStore, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodPost && req.Method != http.MethodPut {
				return next(c)
			}
			key := req.Header.Get("Idempotency-Key")
			if key == "" {
				return next(c)
			}

			ctx := req.Context()
			scoped := db.TenantFromContext(ctx) + ":" + auth.UserIDFromContext(ctx) + ":" + key
			path := req.URL.Path

			cached, ok, err := store.Get(ctx, scoped)
			if err != nil {
				return err
			}
			if !ok {
				reserved, err := store.Reserve(ctx, scoped)
				if err != nil {
					return err
				}
				if !reserved {
					// Either still running or finished since the Get above.
					if cached, ok, err = store.Get(ctx, scoped); err != nil {
						return err
					}
					if !ok {
						return echo.NewHTTPError(http.StatusConflict, "a request with this idempotency key is still in progress")
					}
				}
			}
			if ok {
				return replay(c, cached, path)
			}

			// The request context may already be cancelled by the time the
			// store is written.
			storeCtx := context.WithoutCancel(ctx)
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := store.Release(storeCtx, scoped); err != nil {
					logger.Error().Err(err).Str("path", path).Msg("idempotency key release failed")
				}
			}()

			orig := c.Response().Writer
			rec := &responseCapture{ResponseWriter: orig, header: make(http.Header), status: http.StatusOK}
			c.Response().Writer = rec
			err = next(c)
			c.Response().Writer = orig
			if err != nil {
				return err
			}

			for k, vals := range rec.header {
				for _, v := range vals {
					orig.Header().Add(k, v)
				}
			}
			orig.WriteHeader(rec.status)
			if _, werr := orig.Write(rec.body.Bytes()); werr != nil {
				return werr
			}

			if rec.status >= http.StatusBadRequest {
				return nil
			}
			if err := store.Set(storeCtx, scoped, &CachedResponse{
				Method:     req.Method,
				Path:       path,
				StatusCode: rec.status,
				Headers:    rec.header,
				Body:       rec.body.Bytes(),
			}); err != nil {
				logger.Error().Err(err).Str("path", path).Int("status", rec.status).
					Msg("idempotency response not stored")
				return nil
			}
			completed = true
			return nil
		}
	}
}

func replay(c echo.Context, cached *CachedResponse, path string) error {
	req := c.Request()
	if cached.Method != req.Method || cached.Path != path {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "idempotency key was already used for a different operation")
	}
	resp := c.Response()
	for k, vals := range cached.Headers {
		for _, v := range vals {
			resp.Header().Add(k, v)
		}
	}
	resp.Header().Set("X-Idempotency-Replayed", "true")
	resp.WriteHeader(cached.StatusCode)
	_, err := resp.Write(cached.Body)
	return err
}

type responseCapture struct {
	http.ResponseWriter
	header http.Header
	body   bytes.Buffer
	status int
}

func (r *responseCapture) Header() http.Header { return r.header }

func (r *responseCapture) WriteHeader(code int) { r.status = code }

func (r *responseCapture) Write(b []byte) (int, error) { return r.body.Write(b) }
