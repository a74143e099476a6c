package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/gatelimit/metrics"
)

// 指标常量定义
const (
	// MetricRequests 判定次数 (Counter)，按 route/outcome 区分
	MetricRequests = "ratelimit_requests_total"

	// MetricStoreErrors 存储故障次数 (Counter)，每次都对应一次放行
	MetricStoreErrors = "ratelimit_store_errors_total"

	// MetricStoreDuration 存储调用耗时 (Histogram)
	MetricStoreDuration = "ratelimit_store_duration_seconds"

	// MetricBreakerState 熔断器状态 (Gauge)：0 closed，1 half_open，2 open
	MetricBreakerState = "ratelimit_breaker_state"

	LabelRoute   = "route"
	LabelOutcome = "outcome"
	LabelStore   = "store"
)

// outcome 标签取值
const (
	OutcomeAllowed     = "allowed"
	OutcomeDenied      = "denied"
	OutcomeWhitelisted = "whitelisted"
	OutcomeFailOpen    = "fail_open"
	OutcomeRejected    = "rejected" // 配置缺失或输入非法
)

var storeDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

type limiterMetrics struct {
	requests      metrics.Counter
	storeErrors   metrics.Counter
	storeDuration metrics.Histogram
}

func newLimiterMetrics(meter metrics.Meter) (*limiterMetrics, error) {
	requests, err := meter.Counter(MetricRequests, "Number of rate limit decisions")
	if err != nil {
		return nil, err
	}
	storeErrors, err := meter.Counter(MetricStoreErrors, "Number of store failures that were failed open")
	if err != nil {
		return nil, err
	}
	storeDuration, err := meter.Histogram(MetricStoreDuration, "Latency of the atomic token bucket call",
		metrics.WithUnit("s"), metrics.WithBuckets(storeDurationBuckets...))
	if err != nil {
		return nil, err
	}
	return &limiterMetrics{
		requests:      requests,
		storeErrors:   storeErrors,
		storeDuration: storeDuration,
	}, nil
}

func (m *limiterMetrics) decision(ctx context.Context, route, outcome string) {
	m.requests.Inc(ctx, metrics.L(LabelRoute, route), metrics.L(LabelOutcome, outcome))
}

func (m *limiterMetrics) storeCall(ctx context.Context, route, store string, elapsed time.Duration, failed bool) {
	m.storeDuration.Record(ctx, elapsed.Seconds(), metrics.L(LabelRoute, route), metrics.L(LabelStore, store))
	if failed {
		m.storeErrors.Inc(ctx, metrics.L(LabelRoute, route), metrics.L(LabelStore, store))
	}
}
