package ratelimit

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/trace"
	"github.com/ceyewan/gatelimit/xerrors"
)

const scriptLoadTimeout = 3 * time.Second

// scriptLoader 支持预加载脚本的存储
type scriptLoader interface {
	Load(ctx context.Context) error
}

type boundStore struct {
	Store
}

type limiter struct {
	cfg      *Config
	registry *Registry
	store    atomic.Pointer[boundStore]
	owned    io.Closer
	logger   clog.Logger
	metrics  *limiterMetrics
	opts     *options
	clock    func() time.Time
}

func (l *limiter) Init(store Store) bool {
	if store == nil {
		return false
	}
	raw := store
	if l.cfg.Breaker.Enabled {
		store = NewBreakerStore(store, &l.cfg.Breaker, WithLogger(l.opts.logger), WithMeter(l.opts.meter))
	}
	if !l.store.CompareAndSwap(nil, &boundStore{Store: store}) {
		l.logger.Warn("rate limiter already initialized, ignoring store", clog.String("store", store.Name()))
		return false
	}
	if loader, ok := raw.(scriptLoader); ok {
		ctx, cancel := context.WithTimeout(context.Background(), scriptLoadTimeout)
		defer cancel()
		if err := loader.Load(ctx); err != nil {
			// 首次调用时由 EVAL 补上
			l.logger.Warn("failed to preload token bucket script", clog.Error(err))
		}
	}
	l.logger.Info("rate limiter initialized", clog.String("store", store.Name()))
	return true
}

func (l *limiter) Allow(ctx context.Context, routeID, identity string) (*Decision, error) {
	bound := l.store.Load()
	if bound == nil {
		return nil, ErrUninitialized
	}

	ctx, span := trace.StartAllowSpan(ctx, routeID)
	defer span.End()

	if identity == "" {
		err := xerrors.Wrapf(ErrIdentityEmpty, "route %q", routeID)
		trace.MarkSpanError(span, err)
		l.metrics.decision(ctx, routeID, OutcomeRejected)
		return nil, err
	}

	cfg, name, err := l.registry.Lookup(routeID)
	if err != nil {
		trace.MarkSpanError(span, err)
		l.metrics.decision(ctx, routeID, OutcomeRejected)
		l.logger.WarnContext(ctx, "rate limit configuration missing", clog.String("route", routeID))
		return nil, err
	}

	if cfg.Whitelisted(identity) {
		span.SetAttributes(attribute.Bool(trace.AttrWhitelisted, true), attribute.Bool(trace.AttrAllowed, true))
		l.metrics.decision(ctx, name, OutcomeWhitelisted)
		return &Decision{
			Allowed:         true,
			TokensRemaining: TokensUnlimited,
			Limits:          cfg,
			Headers:         map[string]string{},
			Route:           name,
			Whitelisted:     true,
		}, nil
	}

	scopeRoute := routeID
	if scopeRoute == "" {
		scopeRoute = name
	}
	keys := deriveKeys(l.cfg.KeyScope, scopeRoute, identity)
	req := TakeRequest{
		Rate:      cfg.ReplenishRate,
		Capacity:  cfg.BurstCapacity,
		Now:       l.clock().Unix(),
		Requested: 1,
	}

	callCtx := ctx
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	out := bound.Take(callCtx, keys, req)
	l.metrics.storeCall(ctx, name, bound.Name(), time.Since(start), out.Failed())
	span.SetAttributes(attribute.String(trace.AttrStore, bound.Name()))

	if out.Failed() {
		l.logger.ErrorContext(ctx, "rate limiter store failed, allowing request",
			clog.String("route", name),
			clog.String("store", bound.Name()),
			clog.Error(out.Err))
		trace.MarkSpanError(span, out.Err)
		span.SetAttributes(attribute.Bool(trace.AttrFailOpen, true), attribute.Bool(trace.AttrAllowed, true))
		l.metrics.decision(ctx, name, OutcomeFailOpen)
		return &Decision{
			Allowed:         true,
			TokensRemaining: TokensUnknown,
			Limits:          cfg,
			Headers:         l.Headers(cfg, TokensUnknown),
			Route:           name,
			FailOpen:        true,
		}, nil
	}

	outcome := OutcomeDenied
	if out.Admitted {
		outcome = OutcomeAllowed
	}
	l.metrics.decision(ctx, name, outcome)
	span.SetAttributes(
		attribute.Bool(trace.AttrAllowed, out.Admitted),
		attribute.Int64(trace.AttrTokensRemaining, out.TokensLeft),
	)
	l.logger.DebugContext(ctx, "rate limit decision",
		clog.String("route", name),
		clog.String("identity", identity),
		clog.Bool("allowed", out.Admitted),
		clog.Int64("tokens_remaining", out.TokensLeft))

	return &Decision{
		Allowed:         out.Admitted,
		TokensRemaining: out.TokensLeft,
		Limits:          cfg,
		Headers:         l.Headers(cfg, out.TokensLeft),
		Route:           name,
	}, nil
}

func (l *limiter) Headers(cfg RouteConfig, tokensLeft int64) map[string]string {
	if !l.cfg.includeHeaders() {
		return map[string]string{}
	}
	return map[string]string{
		l.cfg.RemainingHeader:     strconv.FormatInt(tokensLeft, 10),
		l.cfg.ReplenishRateHeader: strconv.Itoa(cfg.ReplenishRate),
		l.cfg.BurstCapacityHeader: strconv.Itoa(cfg.BurstCapacity),
	}
}

func (l *limiter) Reload(routes []RouteRule, def *RouteConfig) error {
	if err := l.registry.Replace(routes, def); err != nil {
		l.logger.Error("rejected rate limit route reload", clog.Error(err))
		return err
	}
	l.logger.Info("rate limit routes reloaded",
		clog.Int("routes", len(routes)),
		clog.Bool("default", def != nil))
	return nil
}

func (l *limiter) Close() error {
	if l.owned != nil {
		return l.owned.Close()
	}
	return nil
}
