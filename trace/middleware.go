package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc/stats"
)

// GinMiddleware 返回 Gin 服务端 Span 中间件，应挂在限流中间件之前，
// 这样 ratelimit.allow 会成为请求 Span 的子 Span。skipPaths 中的路径不创建 Span。
func GinMiddleware(serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, ok := skip[r.URL.Path]
		return !ok
	}))
}

// GRPCServerStatsHandler 返回 gRPC 服务端追踪 Handler
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler()
}
