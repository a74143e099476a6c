package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/xerrors"
)

type redisConnector struct {
	cfg       *RedisConfig
	client    redis.UniversalClient
	logger    clog.Logger
	healthy   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRedis 创建 Redis 连接器，此时不建立连接
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis 配置不能为空")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &redisConnector{
		cfg:    cfg,
		logger: opt.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
	}

	if cfg.Cluster {
		c.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
		})
	} else {
		c.client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			MaintNotificationsConfig: &maintnotifications.Config{
				Mode: maintnotifications.ModeDisabled,
			},
		})
	}

	if cfg.EnableTracing {
		if err := redisotel.InstrumentTracing(c.client); err != nil {
			return nil, xerrors.Wrap(err, "instrument redis tracing")
		}
	}
	if cfg.EnableMetrics {
		if err := redisotel.InstrumentMetrics(c.client); err != nil {
			return nil, xerrors.Wrap(err, "instrument redis metrics")
		}
	}

	return c, nil
}

// Connect 建立连接并探活
func (c *redisConnector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.logger.Info("attempting to connect to redis", clog.String("addr", c.cfg.endpoint()))

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("failed to connect to redis", clog.Error(err), clog.String("addr", c.cfg.endpoint()))
		return xerrors.Wrapf(xerrors.Combine(ErrConnection, err), "redis connector[%s]", c.cfg.Name)
	}

	c.healthy.Store(true)
	c.logger.Info("successfully connected to redis", clog.String("addr", c.cfg.endpoint()))
	return nil
}

// Close 关闭连接，重复调用返回 nil
func (c *redisConnector) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.healthy.Store(false)
		c.logger.Info("closing redis connection", clog.String("addr", c.cfg.endpoint()))
		if err = c.client.Close(); err != nil {
			c.logger.Error("failed to close redis connection", clog.Error(err))
		}
	})
	return err
}

// HealthCheck 探活并更新健康状态缓存
func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(xerrors.Combine(ErrHealthCheck, err), "redis connector[%s]", c.cfg.Name)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

func (c *redisConnector) GetClient() redis.UniversalClient {
	return c.client
}
