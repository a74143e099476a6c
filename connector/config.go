package connector

import (
	"time"

	"github.com/ceyewan/gatelimit/xerrors"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")

	// Addr 单机地址，如 "127.0.0.1:6379"；Cluster 为 true 时使用 Addrs
	Addr     string   `mapstructure:"addr"`
	Addrs    []string `mapstructure:"addrs"`
	Cluster  bool     `mapstructure:"cluster"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"` // 集群模式忽略

	PoolSize     int           `mapstructure:"pool_size"`      // 默认: 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认: 0
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认: 5s
	// ReadTimeout 同时是限流脚本的单次调用超时，超时按存储故障放行
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 默认: 500ms
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 默认: 500ms
	// MaxRetries 默认 -1，不重试
	MaxRetries int `mapstructure:"max_retries"`

	EnableTracing bool `mapstructure:"enable_tracing"` // redisotel 链路追踪
	EnableMetrics bool `mapstructure:"enable_metrics"` // redisotel 连接池与命令指标
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = -1
	}
}

func (c *RedisConfig) validate() error {
	if c.Cluster {
		if len(c.Addrs) == 0 {
			return xerrors.Wrap(ErrConfig, "redis 集群地址列表不能为空")
		}
		return nil
	}
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis 地址不能为空")
	}
	if c.DB < 0 {
		return xerrors.Wrap(ErrConfig, "redis 数据库编号不能小于0")
	}
	return nil
}

// endpoint 返回用于日志的地址描述
func (c *RedisConfig) endpoint() string {
	if c.Cluster {
		return joinAddrs(c.Addrs)
	}
	return c.Addr
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ","
		}
		out += a
	}
	return out
}
