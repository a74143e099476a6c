package ratelimit

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gatelimit/xerrors"
)

// KeyResolver 从请求中解析限流身份
type KeyResolver func(c *gin.Context) string

// RouteResolver 从请求中解析路由 id
type RouteResolver func(c *gin.Context) string

// RemoteAddrKeyResolver 使用 TCP 对端地址（不含端口），不信任任何代理头
func RemoteAddrKeyResolver(c *gin.Context) string {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// ClientIPKeyResolver 使用 gin 的 ClientIP，会按 TrustedProxies 解析 X-Forwarded-For
func ClientIPKeyResolver(c *gin.Context) string {
	return c.ClientIP()
}

// HeaderKeyResolver 使用请求头的值作为身份，例如 API Key
func HeaderKeyResolver(name string) KeyResolver {
	return func(c *gin.Context) string {
		return c.GetHeader(name)
	}
}

// FullPathRouteResolver 使用匹配到的路由模板，如 /api/orders/:id
func FullPathRouteResolver(c *gin.Context) string {
	return c.FullPath()
}

// GinMiddlewareOptions Gin 中间件配置
type GinMiddlewareOptions struct {
	// KeyResolver 默认 RemoteAddrKeyResolver
	KeyResolver KeyResolver
	// RouteResolver 默认 FullPathRouteResolver
	RouteResolver RouteResolver
	// AllowEmptyKey 为 true 时无法解析身份的请求直接放行，否则返回 EmptyKeyStatus
	AllowEmptyKey  bool
	EmptyKeyStatus int // 默认 403
	DeniedStatus   int // 默认 429
}

func (o *GinMiddlewareOptions) setDefaults() {
	if o.KeyResolver == nil {
		o.KeyResolver = RemoteAddrKeyResolver
	}
	if o.RouteResolver == nil {
		o.RouteResolver = FullPathRouteResolver
	}
	if o.EmptyKeyStatus == 0 {
		o.EmptyKeyStatus = http.StatusForbidden
	}
	if o.DeniedStatus == 0 {
		o.DeniedStatus = http.StatusTooManyRequests
	}
}

// GinMiddleware 创建 Gin 限流中间件
//
// 放行与拒绝都会写入限流响应头。存储故障时 Limiter 已放行，这里不需要额外降级；
// 路由缺少配置返回 500，Limiter 未初始化返回 503。
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter, &ratelimit.GinMiddlewareOptions{
//	    KeyResolver: ratelimit.HeaderKeyResolver("X-API-Key"),
//	}))
func GinMiddleware(limiter Limiter, opts *GinMiddlewareOptions) gin.HandlerFunc {
	if limiter == nil {
		limiter = Discard()
	}
	o := GinMiddlewareOptions{}
	if opts != nil {
		o = *opts
	}
	o.setDefaults()

	return func(c *gin.Context) {
		identity := o.KeyResolver(c)
		if identity == "" {
			if o.AllowEmptyKey {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(o.EmptyKeyStatus, gin.H{"error": "rate limit key is empty"})
			return
		}

		d, err := limiter.Allow(c.Request.Context(), o.RouteResolver(c), identity)
		if err != nil {
			c.AbortWithStatusJSON(httpStatus(err), gin.H{"error": err.Error()})
			return
		}

		for k, v := range d.Headers {
			c.Header(k, v)
		}

		if !d.Allowed {
			c.AbortWithStatusJSON(o.DeniedStatus, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func httpStatus(err error) int {
	switch {
	case xerrors.Is(err, ErrUninitialized):
		return http.StatusServiceUnavailable
	case xerrors.Is(err, ErrIdentityEmpty):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
