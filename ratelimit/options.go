package ratelimit

import (
	"time"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/connector"
	"github.com/ceyewan/gatelimit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	redisConn connector.RedisConnector
	store     Store
	clock     func() time.Time
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithRedisConnector 设置 Redis 连接器，driver 为 redis 时在 New 中直接完成初始化
func WithRedisConnector(redisConn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = redisConn
	}
}

// WithStore 直接指定存储，优先于 driver
func WithStore(store Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithClock 替换时钟，脚本使用其 Unix 秒作为当前时间
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	o.logger = o.logger.With(clog.String("component", "ratelimit"))
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}
