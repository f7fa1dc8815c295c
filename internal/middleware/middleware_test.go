package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func brotliRouter(body string) *gin.Engine {
	r := gin.New()
	r.Use(Brotli())
	handler := func(c *gin.Context) { c.String(http.StatusOK, body) }
	r.GET("/api/v1/tests/x", handler)
	r.GET("/ws/v1/tests/x/session", handler)
	return r
}

func TestBrotli_CompressesLargeBodies(t *testing.T) {
	body := strings.Repeat(`{"id":"chem-101"}`, 200)
	w := serve(brotliRouter(body), "/api/v1/tests/x", http.Header{"Accept-Encoding": {"gzip, br"}})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))

	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestBrotli_PassesThrough(t *testing.T) {
	large := strings.Repeat("a", 4096)
	tests := []struct {
		name   string
		body   string
		path   string
		header http.Header
	}{
		{"small body", "ok", "/api/v1/tests/x", http.Header{"Accept-Encoding": {"br"}}},
		{"client without br", large, "/api/v1/tests/x", http.Header{"Accept-Encoding": {"gzip"}}},
		{"websocket prefix", large, "/ws/v1/tests/x/session", http.Header{"Accept-Encoding": {"br"}}},
		{"event stream", large, "/api/v1/tests/x", http.Header{"Accept-Encoding": {"br"}, "Accept": {"text/event-stream"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(brotliRouter(tt.body), tt.path, tt.header)

			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/private", PrivateCache(time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/nostore", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, "private, max-age=60", serve(r, "/private", nil).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", serve(r, "/nostore", nil).Header().Get("Cache-Control"))
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer rdb.Close()

	r := gin.New()
	r.GET("/login", NewRateLimiter(rdb, 1, time.Minute, zerolog.Nop()).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r, "/login", nil).Code)
	}
}

func TestRateLimiter_DisabledWithZeroLimit(t *testing.T) {
	r := gin.New()
	r.GET("/login", NewRateLimiter(nil, 0, time.Minute, zerolog.Nop()).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, "/login", nil).Code)
}
