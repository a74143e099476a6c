package ratelimit

import "github.com/ceyewan/gatelimit/xerrors"

// 错误定义
var (
	// ErrUninitialized 限流器尚未绑定存储
	ErrUninitialized = xerrors.New("ratelimit: limiter is not initialized")

	// ErrConfigurationMissing 路由没有配置且没有可用的默认配置
	ErrConfigurationMissing = xerrors.New("ratelimit: configuration missing")

	// ErrIdentityEmpty 身份标识为空
	ErrIdentityEmpty = xerrors.New("ratelimit: identity is empty")

	// ErrInvalidRoute 路由配置不合法
	ErrInvalidRoute = xerrors.New("ratelimit: invalid route config")

	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("ratelimit: config is nil")

	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("ratelimit: connector is nil")

	// ErrStoreUnavailable 存储被熔断器短路
	ErrStoreUnavailable = xerrors.New("ratelimit: store unavailable")

	// ErrUnexpectedReply 脚本返回值格式不符合预期
	ErrUnexpectedReply = xerrors.New("ratelimit: unexpected store reply")

	// ErrRateLimitExceeded 请求被限流，供 HTTP/gRPC 适配层返回
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
)
