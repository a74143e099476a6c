package ratelimit

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/metrics"
	"github.com/ceyewan/gatelimit/xerrors"
)

// BreakerStore 用熔断器包装另一个存储
//
// 存储持续故障时熔断器打开，Take 立即返回 ErrStoreUnavailable，Limiter 据此放行，
// 请求不必再等待存储超时。调用方主动取消的请求不计入失败。
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker[Outcome]
	logger clog.Logger
	state  metrics.Gauge
}

// NewBreakerStore 创建带熔断的存储
func NewBreakerStore(next Store, cfg *BreakerConfig, opts ...Option) *BreakerStore {
	if cfg == nil {
		cfg = &BreakerConfig{}
	}
	cfg.setDefaults()
	o := applyOptions(opts)

	s := &BreakerStore{
		next:   next,
		logger: o.logger,
	}
	if g, err := o.meter.Gauge(MetricBreakerState, "Store circuit breaker state"); err == nil {
		s.state = g
	} else {
		s.state, _ = metrics.Discard().Gauge(MetricBreakerState, "")
	}

	s.cb = gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: s.onStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

// Take 通过熔断器调用下层存储
func (s *BreakerStore) Take(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome {
	out, err := s.cb.Execute(func() (Outcome, error) {
		o := s.next.Take(ctx, keys, req)
		return o, o.Err
	})
	if err == nil {
		return out
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return storeFailure(xerrors.Wrapf(ErrStoreUnavailable, "%s: %v", s.next.Name(), err))
	}
	return storeFailure(err)
}

// State 返回熔断器当前状态：closed | half_open | open
func (s *BreakerStore) State() string {
	return stateToString(s.cb.State())
}

func (s *BreakerStore) Name() string {
	return s.next.Name()
}

func (s *BreakerStore) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	s.logger.Warn("store circuit breaker state changed",
		clog.String("store", name),
		clog.String("from", stateToString(from)),
		clog.String("to", stateToString(to)))
	s.state.Set(context.Background(), stateValue(to), metrics.L(LabelStore, name))
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
