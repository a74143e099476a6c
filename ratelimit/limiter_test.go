package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gatelimit/clog"
)

// fakeStore 记录每次调用，返回预设结果
type fakeStore struct {
	mu      sync.Mutex
	calls   []fakeCall
	outcome Outcome
	take    func(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome
	loaded  int
}

type fakeCall struct {
	keys BucketKeys
	req  TakeRequest
}

func (s *fakeStore) Take(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, fakeCall{keys: keys, req: req})
	take := s.take
	out := s.outcome
	s.mu.Unlock()
	if take != nil {
		return take(ctx, keys, req)
	}
	return out
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) Load(context.Context) error {
	s.mu.Lock()
	s.loaded++
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiterWithStore(t *testing.T, cfg *Config, store Store, opts ...Option) Limiter {
	t.Helper()
	l, err := New(cfg, append([]Option{WithStore(store)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func routeCfg(rate, burst int, whitelist ...string) *RouteConfig {
	return &RouteConfig{ReplenishRate: rate, BurstCapacity: burst, WhiteList: whitelist}
}

func TestNew(t *testing.T) {
	t.Run("配置为空", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("路由配置非法", func(t *testing.T) {
		_, err := New(&Config{Default: routeCfg(0, 1)})
		assert.ErrorIs(t, err, ErrInvalidRoute)
	})

	t.Run("memory 驱动立即可用", func(t *testing.T) {
		l, err := New(&Config{Driver: DriverMemory, Default: routeCfg(1, 1)})
		require.NoError(t, err)
		defer l.Close()

		d, err := l.Allow(context.Background(), "any", "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("redis 驱动未传连接器时未初始化", func(t *testing.T) {
		l, err := New(&Config{Default: routeCfg(1, 1)})
		require.NoError(t, err)

		_, err = l.Allow(context.Background(), "any", "u1")
		assert.ErrorIs(t, err, ErrUninitialized)
	})

	t.Run("WithStore 优先于驱动", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 3}}
		l := newLimiterWithStore(t, &Config{Driver: DriverMemory, Default: routeCfg(1, 5)}, store)

		d, err := l.Allow(context.Background(), "any", "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), d.TokensRemaining)
		assert.Equal(t, 1, store.callCount())
		assert.Equal(t, 1, store.loaded, "初始化时预加载脚本")
	})
}

func TestLimiterInit(t *testing.T) {
	l, err := New(&Config{Default: routeCfg(1, 5)})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.Allow(ctx, "orders", "u1")
	require.ErrorIs(t, err, ErrUninitialized)

	assert.False(t, l.Init(nil))

	first := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 4}}
	second := &fakeStore{outcome: Outcome{Admitted: false, TokensLeft: 0}}
	assert.True(t, l.Init(first))
	assert.False(t, l.Init(second), "只能初始化一次")

	d, err := l.Allow(ctx, "orders", "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 0, second.callCount())
}

func TestLimiterInitConcurrent(t *testing.T) {
	l, err := New(&Config{Default: routeCfg(1, 5)})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Init(&fakeStore{}) {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestLimiterAllow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	t.Run("调用参数与 key", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 19}}
		l := newLimiterWithStore(t, &Config{
			Routes: []RouteRule{{ID: "orders", RouteConfig: *routeCfg(10, 20)}},
		}, store, WithClock(clock.Now))

		d, err := l.Allow(ctx, "orders", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(19), d.TokensRemaining)
		assert.Equal(t, "orders", d.Route)
		assert.Equal(t, 10, d.Limits.ReplenishRate)
		assert.Equal(t, 20, d.Limits.BurstCapacity)
		assert.False(t, d.FailOpen)

		require.Len(t, store.calls, 1)
		call := store.calls[0]
		assert.Equal(t, IdentityKeys("10.0.0.1"), call.keys)
		assert.Equal(t, TakeRequest{Rate: 10, Capacity: 20, Now: clock.Now().Unix(), Requested: 1}, call.req)
	})

	t.Run("拒绝", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: false, TokensLeft: 0}}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)

		d, err := l.Allow(ctx, "orders", "u1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(0), d.TokensRemaining)
		assert.Equal(t, "0", d.Headers[DefaultRemainingHeader])
	})

	t.Run("身份为空", func(t *testing.T) {
		store := &fakeStore{}
		l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5)}, store)

		_, err := l.Allow(ctx, "orders", "")
		assert.ErrorIs(t, err, ErrIdentityEmpty)
		assert.Equal(t, 0, store.callCount())
	})

	t.Run("配置缺失", func(t *testing.T) {
		store := &fakeStore{}
		l := newLimiterWithStore(t, &Config{
			Routes: []RouteRule{{ID: "orders", RouteConfig: *routeCfg(1, 5)}},
		}, store)

		_, err := l.Allow(ctx, "payments", "u1")
		require.ErrorIs(t, err, ErrConfigurationMissing)
		assert.Contains(t, err.Error(), "payments")
		assert.Equal(t, 0, store.callCount())
	})

	t.Run("路由作用域", func(t *testing.T) {
		store := &fakeStore{outcome: Outcome{Admitted: true}}
		l := newLimiterWithStore(t, &Config{KeyScope: KeyScopeRoute, Default: routeCfg(1, 5)}, store)

		_, err := l.Allow(ctx, "orders", "u1")
		require.NoError(t, err)
		_, err = l.Allow(ctx, "", "u1")
		require.NoError(t, err)

		require.Len(t, store.calls, 2)
		assert.Equal(t, IdentityKeys("orders:u1"), store.calls[0].keys)
		assert.Equal(t, IdentityKeys(DefaultRouteName+":u1"), store.calls[1].keys)
	})
}

func TestLimiterWhitelist(t *testing.T) {
	store := &fakeStore{outcome: Outcome{Admitted: false}}
	l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 1, "admin")}, store)

	for i := 0; i < 100; i++ {
		d, err := l.Allow(context.Background(), "orders", "admin")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, d.Whitelisted)
		assert.Equal(t, TokensUnlimited, d.TokensRemaining)
		assert.Empty(t, d.Headers)
	}
	assert.Equal(t, 0, store.callCount(), "白名单不访问存储")
}

func TestLimiterFailOpen(t *testing.T) {
	var buf bytes.Buffer
	logger, err := clog.New(&clog.Config{Level: "info", Format: "json"}, clog.WithWriter(&buf))
	require.NoError(t, err)

	store := &fakeStore{outcome: Outcome{Err: errors.New("dial tcp: connection refused")}}
	l := newLimiterWithStore(t, &Config{Default: routeCfg(10, 20)}, store, WithLogger(logger))

	d, err := l.Allow(context.Background(), "orders", "u1")
	require.NoError(t, err, "存储故障不向调用方返回错误")
	assert.True(t, d.Allowed)
	assert.True(t, d.FailOpen)
	assert.Equal(t, TokensUnknown, d.TokensRemaining)
	assert.Equal(t, map[string]string{
		DefaultRemainingHeader:     "-1",
		DefaultReplenishRateHeader: "10",
		DefaultBurstCapacityHeader: "20",
	}, d.Headers)

	out := buf.String()
	assert.Contains(t, out, "rate limiter store failed")
	assert.Contains(t, out, "connection refused")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"level":"ERROR"`)), "每次故障一条错误日志")
}

func TestLimiterTimeout(t *testing.T) {
	store := &fakeStore{take: func(ctx context.Context, _ BucketKeys, _ TakeRequest) Outcome {
		<-ctx.Done()
		return storeFailure(ctx.Err())
	}}
	l := newLimiterWithStore(t, &Config{Default: routeCfg(1, 5), Timeout: 20 * time.Millisecond}, store)

	start := time.Now()
	d, err := l.Allow(context.Background(), "orders", "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, TokensUnknown, d.TokensRemaining)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterHeaders(t *testing.T) {
	cfg := RouteConfig{ReplenishRate: 10, BurstCapacity: 20}

	t.Run("默认头", func(t *testing.T) {
		l := newLimiterWithStore(t, &Config{Default: &cfg}, &fakeStore{})
		assert.Equal(t, map[string]string{
			"X-RateLimit-Remaining":      "7",
			"X-RateLimit-Replenish-Rate": "10",
			"X-RateLimit-Burst-Capacity": "20",
		}, l.Headers(cfg, 7))
	})

	t.Run("关闭响应头", func(t *testing.T) {
		disabled := false
		store := &fakeStore{outcome: Outcome{Admitted: true, TokensLeft: 7}}
		l := newLimiterWithStore(t, &Config{Default: &cfg, IncludeHeaders: &disabled}, store)

		assert.Empty(t, l.Headers(cfg, 7))
		d, err := l.Allow(context.Background(), "orders", "u1")
		require.NoError(t, err)
		assert.NotNil(t, d.Headers)
		assert.Empty(t, d.Headers)
	})

	t.Run("自定义头名称", func(t *testing.T) {
		l := newLimiterWithStore(t, &Config{
			Default:             &cfg,
			RemainingHeader:     "X-Remaining",
			ReplenishRateHeader: "X-Rate",
			BurstCapacityHeader: "X-Burst",
		}, &fakeStore{})
		assert.Equal(t, map[string]string{"X-Remaining": "7", "X-Rate": "10", "X-Burst": "20"}, l.Headers(cfg, 7))
	})
}

func TestLimiterReload(t *testing.T) {
	store := &fakeStore{outcome: Outcome{Admitted: true}}
	l := newLimiterWithStore(t, &Config{
		Routes: []RouteRule{{ID: "orders", RouteConfig: *routeCfg(1, 5)}},
	}, store)
	ctx := context.Background()

	_, err := l.Allow(ctx, "payments", "u1")
	require.ErrorIs(t, err, ErrConfigurationMissing)

	require.NoError(t, l.Reload([]RouteRule{{ID: "payments", RouteConfig: *routeCfg(2, 4)}}, nil))
	d, err := l.Allow(ctx, "payments", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Limits.ReplenishRate)

	assert.ErrorIs(t, l.Reload(nil, routeCfg(0, 0)), ErrInvalidRoute)
	_, err = l.Allow(ctx, "payments", "u1")
	assert.NoError(t, err, "非法配置不替换旧配置")
}

// TestLimiterMemoryScenario replenishRate=1, burstCapacity=5 的完整序列
func TestLimiterMemoryScenario(t *testing.T) {
	clock := newFakeClock()
	l, err := New(&Config{Driver: DriverMemory, Default: routeCfg(1, 5)}, WithClock(clock.Now))
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	for _, want := range []int64{4, 3, 2, 1, 0} {
		d, err := l.Allow(ctx, "orders", "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.TokensRemaining)
	}

	d, err := l.Allow(ctx, "orders", "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.TokensRemaining)

	clock.Advance(3 * time.Second)
	d, err = l.Allow(ctx, "orders", "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.TokensRemaining)

	// 身份作用域：另一个路由共享同一个桶
	d, err = l.Allow(ctx, "payments", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TokensRemaining)
}

func TestDiscardLimiter(t *testing.T) {
	l := Discard()
	d, err := l.Allow(context.Background(), "orders", "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, TokensUnlimited, d.TokensRemaining)
	assert.False(t, l.Init(&fakeStore{}))
	assert.NoError(t, l.Reload(nil, nil))
	assert.Empty(t, l.Headers(RouteConfig{}, 1))
	assert.NoError(t, l.Close())
}
