package ratelimit

import (
	"context"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/config"
	"github.com/ceyewan/gatelimit/xerrors"
)

// RouteSource 可监听的路由配置来源，config.Loader 满足该接口
type RouteSource interface {
	UnmarshalKey(key string, v any) error
	Watch(ctx context.Context, key string) (<-chan config.Event, error)
}

// RouteSection 配置文件中与路由相关的部分
type RouteSection struct {
	Default *RouteConfig `mapstructure:"default"`
	Routes  []RouteRule  `mapstructure:"routes"`
}

// WatchRoutes 监听 key 下的路由配置，变化时调用 limiter.Reload
//
// 非法配置会被记录并忽略，Limiter 继续使用旧快照。函数在 ctx 取消后返回。
//
//	go ratelimit.WatchRoutes(ctx, loader, "ratelimit", limiter, logger)
func WatchRoutes(ctx context.Context, src RouteSource, key string, limiter Limiter, logger clog.Logger) error {
	if src == nil || limiter == nil {
		return xerrors.Wrap(ErrConfigNil, "route source and limiter are required")
	}
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.With(clog.String("component", "ratelimit"), clog.String("key", key))

	events, err := src.Watch(ctx, key)
	if err != nil {
		return xerrors.Wrap(err, "watch routes")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var section RouteSection
			if err := src.UnmarshalKey(key, &section); err != nil {
				logger.Error("failed to decode rate limit routes", clog.Error(err))
				continue
			}
			if err := limiter.Reload(section.Routes, section.Default); err != nil {
				continue
			}
			logger.Info("applied rate limit routes", clog.String("source", ev.Source))
		}
	}
}
