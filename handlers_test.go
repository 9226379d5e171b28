package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, accounts []Account) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	metrics := NewMetrics("test")
	controller := NewBotController(accounts, cfg, NoneProxySelector{}, metrics)
	t.Cleanup(controller.Destroy)
	return NewServer(cfg, controller, metrics)
}

func TestHandleInspect_MissingLinkParam(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/inspect", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInspect_InvalidLink(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/inspect?link=not-a-real-link", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInspect_NoBotsAvailableMapsTo503(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil) // no accounts, so the pool is empty

	link := "steam://rungame/730/76561202255233023/+csgo_econ_action_preview%20S123456789A987654321D1234567890123456789"
	req := httptest.NewRequest(http.MethodGet, "/inspect?link="+link, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStatus_ReportsEveryBot(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, []Account{{Username: "alice"}, {Username: "bob"}})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), "bob")
}

func TestHandleReconnect_MissingBotParam(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, []Account{{Username: "alice"}})

	req := httptest.NewRequest(http.MethodPost, "/reconnect", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReconnect_UnknownBotIs404(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, []Account{{Username: "alice"}})

	req := httptest.NewRequest(http.MethodPost, "/reconnect?bot=nobody", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReconnect_KnownBotIs202(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, []Account{{Username: "alice"}})

	req := httptest.NewRequest(http.MethodPost, "/reconnect?bot=alice", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRateLimitMiddleware_BlocksAfterBurst(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	s := newTestServer(t, nil)
	s.rateLimiter = newIPRateLimiter(60) // burst of 6

	var lastCode int
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
