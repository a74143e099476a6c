package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName 限流组件使用的 Tracer 名称
const TracerName = "github.com/ceyewan/gatelimit/ratelimit"

// SpanNameAllow 单次限流判定的 Span 名称
const SpanNameAllow = "ratelimit.allow"

// 限流判定的 Span 属性键
const (
	AttrRoute           = "ratelimit.route"
	AttrAllowed         = "ratelimit.allowed"
	AttrTokensRemaining = "ratelimit.tokens_remaining"
	AttrWhitelisted     = "ratelimit.whitelisted"
	AttrFailOpen        = "ratelimit.fail_open"
	AttrStore           = "ratelimit.store"
)

// Tracer 返回限流组件的 Tracer，始终取全局 Provider，Init 之后创建的 Span 也会导出
func Tracer() oteltrace.Tracer {
	return otel.Tracer(TracerName)
}

// StartAllowSpan 为一次判定开启内部 Span，身份标识不会写入属性
func StartAllowSpan(ctx context.Context, routeID string) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return Tracer().Start(ctx, SpanNameAllow,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(attribute.String(AttrRoute, routeID)),
	)
}

// MarkSpanError 记录错误并将 Span 标记为失败，err 为 nil 时无操作
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
