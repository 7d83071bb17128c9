package httpcontroller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
	"github.com/sweepies/imgur-sans-bullshit/internal/ratelimit"
)

// windowStore stubs the rate-limit slice of the datastore.
type windowStore struct {
	datastore.Interface

	mu     sync.Mutex
	counts map[string]int
}

func (s *windowStore) GetRateLimitCount(clientID, endpoint string, windowStart int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[clientID+endpoint], nil
}

func (s *windowStore) IncrementRateLimit(clientID, endpoint string, windowStart int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[clientID+endpoint]++
	return nil
}

func newTestServer(t *testing.T, maxRequests int) *Server {
	t.Helper()
	registry := hosts.NewRegistry(hosts.RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: maxRequests,
	})
	store := &windowStore{counts: make(map[string]int)}
	settings := &conf.Settings{Version: "test"}
	settings.WebServer.Port = "0"

	return New(settings, registry, nil, ratelimit.New(store, nil), nil)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	s := newTestServer(t, 2)
	s.Echo.GET("/limited", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, s.rateLimitMiddleware("limited"))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/limited", http.NoBody)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		s.Echo.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

// limitedAdapter is a stub host adapter carrying its own rate-limit budget.
type limitedAdapter struct {
	limit hosts.RateLimitConfig
}

func (a *limitedAdapter) ID() string   { return "limited" }
func (a *limitedAdapter) Name() string { return "Limited" }

func (a *limitedAdapter) Config() hosts.AdapterConfig {
	return hosts.AdapterConfig{StaleAfter: time.Hour, RateLimit: &a.limit}
}

func (a *limitedAdapter) MatchInput(string) bool { return true }

func (a *limitedAdapter) ParseInput(input string) *hosts.ParsedInput {
	return &hosts.ParsedInput{ProviderID: "limited", ResourceID: input, PublicID: input}
}

func (a *limitedAdapter) ParsePublicID(publicID string) *hosts.ParsedInput {
	return a.ParseInput(publicID)
}

func (a *limitedAdapter) ToPublicID(resourceID string) string { return resourceID }
func (a *limitedAdapter) CacheKey(resourceID string) string   { return resourceID }

func (a *limitedAdapter) FetchImage(context.Context, string) (*hosts.Image, error) {
	return nil, errors.NewStd("not implemented")
}

func (a *limitedAdapter) FetchAlbum(context.Context, string) (*hosts.Album, error) {
	return nil, errors.NewStd("not implemented")
}

func (a *limitedAdapter) Download(context.Context, string) ([]byte, string, error) {
	return nil, "", errors.NewStd("not implemented")
}

func TestRateLimitUsesAdapterOverride(t *testing.T) {
	s := newTestServer(t, 100)
	adapter := &limitedAdapter{limit: hosts.RateLimitConfig{Window: time.Minute, MaxRequests: 1}}
	require.NoError(t, s.Registry.Register(adapter))

	s.Echo.GET("/p/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, s.rateLimitMiddleware("page"))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/p/abc", http.NoBody)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		s.Echo.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"),
		"budget comes from the owning adapter, not the shared default")

	rec = do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitSharedDefaultWithoutIdentity(t *testing.T) {
	s := newTestServer(t, 42)
	adapter := &limitedAdapter{limit: hosts.RateLimitConfig{Window: time.Minute, MaxRequests: 1}}
	require.NoError(t, s.Registry.Register(adapter))

	s.Echo.GET("/plain", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, s.rateLimitMiddleware("plain"))

	req := httptest.NewRequest(http.MethodGet, "/plain", http.NoBody)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitIsolatesClients(t *testing.T) {
	s := newTestServer(t, 1)
	s.Echo.GET("/limited", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, s.rateLimitMiddleware("limited"))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/limited", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		s.Echo.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234"))
}
