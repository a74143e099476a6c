package ratelimit

import (
	"time"

	"github.com/ceyewan/gatelimit/xerrors"
)

// 存储驱动
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// 默认响应头名称
const (
	DefaultRemainingHeader     = "X-RateLimit-Remaining"
	DefaultReplenishRateHeader = "X-RateLimit-Replenish-Rate"
	DefaultBurstCapacityHeader = "X-RateLimit-Burst-Capacity"
)

// Config 限流组件配置
//
// 典型配置（YAML）：
//
//	ratelimit:
//	  driver: redis
//	  include_headers: true
//	  default:
//	    replenish_rate: 10
//	    burst_capacity: 20
//	  routes:
//	    - id: /api/orders
//	      replenish_rate: 1
//	      burst_capacity: 5
//	      white_list: ["10.0.0.1"]
//	  breaker:
//	    enabled: true
type Config struct {
	// Driver 存储驱动：redis（默认）| memory
	Driver string `mapstructure:"driver"`

	// KeyScope 桶作用域：identity（默认）| route
	KeyScope KeyScope `mapstructure:"key_scope"`

	// Timeout 单次存储调用的超时，0 表示只依赖存储客户端自身的超时
	Timeout time.Duration `mapstructure:"timeout"`

	// IncludeHeaders 是否生成限流响应头，未设置时为 true
	IncludeHeaders      *bool  `mapstructure:"include_headers"`
	RemainingHeader     string `mapstructure:"remaining_header"`
	ReplenishRateHeader string `mapstructure:"replenish_rate_header"`
	BurstCapacityHeader string `mapstructure:"burst_capacity_header"`

	// Default 未匹配路由时使用的配置
	Default *RouteConfig `mapstructure:"default"`
	Routes  []RouteRule  `mapstructure:"routes"`

	Memory  MemoryConfig  `mapstructure:"memory"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// MemoryConfig 进程内存储配置
type MemoryConfig struct {
	// MaximumSize 最多保留的桶数量，默认 100000
	MaximumSize int `mapstructure:"maximum_size"`
}

// BreakerConfig 存储熔断配置
//
// 熔断打开后存储调用立即失败，Limiter 按放行处理，不再等待存储超时。
type BreakerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxRequests     uint32        `mapstructure:"max_requests"`     // 半开状态允许的探测请求数，默认 1
	Interval        time.Duration `mapstructure:"interval"`         // 闭合状态的统计周期，默认 10s
	Timeout         time.Duration `mapstructure:"timeout"`          // 打开到半开的等待时间，默认 5s
	FailureRatio    float64       `mapstructure:"failure_ratio"`    // 触发熔断的失败率，默认 0.5
	MinimumRequests uint32        `mapstructure:"minimum_requests"` // 触发熔断的最小请求数，默认 20
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.KeyScope == "" {
		c.KeyScope = KeyScopeIdentity
	}
	if c.IncludeHeaders == nil {
		enabled := true
		c.IncludeHeaders = &enabled
	}
	if c.RemainingHeader == "" {
		c.RemainingHeader = DefaultRemainingHeader
	}
	if c.ReplenishRateHeader == "" {
		c.ReplenishRateHeader = DefaultReplenishRateHeader
	}
	if c.BurstCapacityHeader == "" {
		c.BurstCapacityHeader = DefaultBurstCapacityHeader
	}
	c.Memory.setDefaults()
	c.Breaker.setDefaults()
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverRedis, DriverMemory:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown driver %q", c.Driver)
	}
	switch c.KeyScope {
	case KeyScopeIdentity, KeyScopeRoute:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown key_scope %q", c.KeyScope)
	}
	if c.Timeout < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "timeout must not be negative")
	}
	if c.Breaker.Enabled && (c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "breaker failure_ratio must be in (0, 1], got %v", c.Breaker.FailureRatio)
	}
	return nil
}

func (c *MemoryConfig) setDefaults() {
	if c.MaximumSize <= 0 {
		c.MaximumSize = 100_000
	}
}

func (c *BreakerConfig) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.5
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 20
	}
}

func (c *Config) includeHeaders() bool {
	return c.IncludeHeaders == nil || *c.IncludeHeaders
}
