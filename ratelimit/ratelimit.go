// Package ratelimit 提供网关使用的按身份令牌桶限流。
//
// 每次判定由 Limiter.Allow(ctx, routeID, identity) 完成：
//   - 按 路由 → Default → defaultFilters 的顺序解析路由配置，都没有时返回 ErrConfigurationMissing
//   - 白名单中的身份直接放行，不访问存储
//   - 由身份派生 request_rate_limiter.{identity}.tokens/.timestamp 两个 key
//   - 在存储上原子执行令牌桶脚本，取 1 个令牌
//   - 存储故障（连接失败、超时、脚本错误、熔断打开）时放行，剩余令牌记为 -1
//
// 存储状态全部在 Redis 中，进程内只有只读的路由配置快照，判定过程不加锁。
//
// ## 基本使用
//
//	redisConn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	_ = redisConn.Connect(ctx)
//	defer redisConn.Close()
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{
//	    Default: &ratelimit.RouteConfig{ReplenishRate: 10, BurstCapacity: 20},
//	}, ratelimit.WithRedisConnector(redisConn), ratelimit.WithLogger(logger))
//
//	d, err := limiter.Allow(ctx, "/api/orders", clientIP)
//	if err != nil {
//	    // ErrConfigurationMissing / ErrUninitialized
//	}
//	if !d.Allowed {
//	    // 429
//	}
//
// ## 延迟初始化
//
// 不传入连接器时 Limiter 处于未初始化状态，Allow 返回 ErrUninitialized，
// 直到 Init(store) 绑定存储。Init 只会成功一次。
//
// ## Gin 中间件
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter, &ratelimit.GinMiddlewareOptions{
//	    KeyResolver: ratelimit.ClientIPKeyResolver,
//	}))
package ratelimit

import (
	"context"
	"math"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/xerrors"
)

// TokensUnlimited 白名单身份的剩余令牌数
const TokensUnlimited int64 = math.MaxInt64

// TokensUnknown 存储故障放行时的剩余令牌数
const TokensUnknown int64 = -1

// Decision 单次判定结果
type Decision struct {
	Allowed         bool
	TokensRemaining int64
	Limits          RouteConfig
	// Headers 需要附加到响应上的限流头，关闭响应头或命中白名单时为空 map
	Headers map[string]string

	// Route 实际命中的配置名：路由 id、"default" 或 "defaultFilters"
	Route       string
	Whitelisted bool
	// FailOpen 为 true 表示存储故障后放行
	FailOpen bool
}

// Limiter 限流器核心接口，所有方法并发安全
type Limiter interface {
	// Allow 对 identity 在 routeID 上的一次请求做判定
	//
	// 只返回 ErrUninitialized、ErrConfigurationMissing、ErrIdentityEmpty 三类错误，
	// 存储故障不会作为错误返回。
	Allow(ctx context.Context, routeID, identity string) (*Decision, error)

	// Init 绑定存储，只有第一次调用返回 true
	Init(store Store) bool

	// Reload 原子替换路由配置，校验失败时保留旧配置
	Reload(routes []RouteRule, def *RouteConfig) error

	// Headers 按配置生成限流响应头
	Headers(cfg RouteConfig, tokensLeft int64) map[string]string

	// Close 释放 Limiter 自己创建的存储，连接器由调用方关闭
	Close() error
}

// New 创建限流器
//
// 存储的选择顺序：WithStore → driver=memory 时的进程内存储 → WithRedisConnector。
// 三者都没有时返回未初始化的 Limiter，需要之后调用 Init。
// cfg.Breaker.Enabled 时存储会被熔断器包装。
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)

	registry, err := NewRegistry(cfg.Routes, cfg.Default)
	if err != nil {
		return nil, err
	}

	m, err := newLimiterMetrics(o.meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "create ratelimit metrics")
	}

	l := &limiter{
		cfg:      cfg,
		registry: registry,
		logger:   o.logger,
		metrics:  m,
		opts:     o,
		clock:    o.clock,
	}

	store := o.store
	switch {
	case store != nil:
	case cfg.Driver == DriverMemory:
		ms, err := NewMemoryStore(&cfg.Memory)
		if err != nil {
			return nil, err
		}
		l.owned = ms
		store = ms
	case o.redisConn != nil:
		rs, err := NewRedisStore(o.redisConn)
		if err != nil {
			return nil, err
		}
		store = rs
	}

	l.logger.Info("creating rate limiter",
		clog.String("driver", cfg.Driver),
		clog.String("key_scope", string(cfg.KeyScope)),
		clog.Int("routes", len(cfg.Routes)),
		clog.Bool("default", cfg.Default != nil),
		clog.Bool("breaker", cfg.Breaker.Enabled))

	if store != nil {
		l.Init(store)
	}
	return l, nil
}

// Discard 返回一个总是放行、不访问存储的 Limiter
func Discard() Limiter {
	return noopLimiter{}
}

type noopLimiter struct{}

func (noopLimiter) Allow(_ context.Context, routeID, _ string) (*Decision, error) {
	return &Decision{
		Allowed:         true,
		TokensRemaining: TokensUnlimited,
		Headers:         map[string]string{},
		Route:           routeID,
	}, nil
}

func (noopLimiter) Init(Store) bool { return false }

func (noopLimiter) Reload([]RouteRule, *RouteConfig) error { return nil }

func (noopLimiter) Headers(RouteConfig, int64) map[string]string { return map[string]string{} }

func (noopLimiter) Close() error { return nil }
