package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(l Limiter, opts *GinMiddlewareOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(l, opts))
	r.GET("/api/orders/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func doRequest(r http.Handler, path, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGinMiddleware(t *testing.T) {
	t.Run("放行并写入响应头", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 7}}
		l := newLimiterWithStore(t, &Config{
			Routes: []RouteRule{{ID: "/api/orders/:id", RouteConfig: *routeCfg(10, 20)}},
		}, store)
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "7", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Replenish-Rate"))
		assert.Equal(t, "20", w.Header().Get("X-RateLimit-Burst-Capacity"))

		require.Len(t, store.calls, 1)
		assert.Equal(t, IdentityKeys("10.0.0.1"), store.calls[0].keys, "默认使用不含端口的对端地址")
	})

	t.Run("拒绝返回 429", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: false, TokensLeft: 0}}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
	})

	t.Run("存储故障放行", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Err: errors.New("connection refused")}}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "-1", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("配置缺失返回 500", func(t *testing.T) {
		l := newLimiterWithStore(t, &Config{}, &fakeStore{})
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "configuration missing")
	})

	t.Run("未初始化返回 503", func(t *testing.T) {
		l, err := New(&Config{Default: routeCfg(1, 5)})
		require.NoError(t, err)
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("按请求头限流", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 1}}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)
		r := setupTestRouter(l, &GinMiddlewareOptions{KeyResolver: HeaderKeyResolver("X-API-Key")})

		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", map[string]string{"X-API-Key": "key-123"})
		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, store.calls, 1)
		assert.Equal(t, IdentityKeys("key-123"), store.calls[0].keys)
	})

	t.Run("身份为空", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true}}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)

		r := setupTestRouter(l, &GinMiddlewareOptions{KeyResolver: HeaderKeyResolver("X-API-Key")})
		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		r = setupTestRouter(l, &GinMiddlewareOptions{KeyResolver: HeaderKeyResolver("X-API-Key"), AllowEmptyKey: true})
		w = doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, store.callCount())
	})

	t.Run("白名单不写响应头", func(t *testing.T) {
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 1, "10.0.0.9")}, &fakeStore{})
		r := setupTestRouter(l, nil)

		w := doRequest(r, "/api/orders/1", "10.0.0.9:52100", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("nil limiter 放行", func(t *testing.T) {
		r := setupTestRouter(nil, nil)
		w := doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGinMiddlewareMemoryStore(t *testing.T) {
	clock := newFakeClock()
	l, err := New(&Config{Driver: DriverMemory, Default: routeCfg(1, 2)}, WithClock(clock.Now))
	require.NoError(t, err)
	defer l.Close()
	r := setupTestRouter(l, &GinMiddlewareOptions{KeyResolver: ClientIPKeyResolver})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他身份不受影响
	assert.Equal(t, http.StatusOK, doRequest(r, "/api/orders/1", "10.0.0.2:52100", nil).Code)

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, doRequest(r, "/api/orders/1", "10.0.0.1:52100", nil).Code)
}

func TestKeyResolvers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())

	c.Request.RemoteAddr = "192.168.1.5:4000"
	assert.Equal(t, "192.168.1.5", RemoteAddrKeyResolver(c))

	c.Request.RemoteAddr = "[2001:db8::1]:4000"
	assert.Equal(t, "2001:db8::1", RemoteAddrKeyResolver(c))

	c.Request.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", RemoteAddrKeyResolver(c))

	c.Request.Header.Set("X-User", "alice")
	assert.Equal(t, "alice", HeaderKeyResolver("X-User")(c))
}
