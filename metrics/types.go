// Package metrics 为 gatelimit 提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，通过 Prometheus Exporter 暴露，提供 Counter、Gauge、Histogram 三类指标。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "gateway",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Shutdown(ctx)
//
//	counter, _ := meter.Counter("ratelimit_requests_total", "限流判定总数")
//	counter.Inc(ctx, metrics.L("route", "orders"), metrics.L("outcome", "allowed"))
package metrics

import (
	"context"
	"net/http"
)

// Counter 只增不减的累计值
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)
	// Add 将计数器增加给定的值，负数会被忽略
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意增减的瞬时值，例如熔断器状态
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如存储调用耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂，创建出的指标可并发使用
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 格式的采集 Handler，可挂载到业务 HTTP 服务上
	Handler() http.Handler

	// Shutdown 刷新并关闭，之后记录的值会被丢弃
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项函数类型
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit 使用 UCUM 单位代码，如 "s"、"By"、"{request}"
	Unit string
	// Buckets 直方图的显式桶边界，仅对 Histogram 生效
	Buckets []float64
}

// WithUnit 设置指标的单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界
//
//	h, _ := meter.Histogram("ratelimit_store_duration_seconds", "存储调用耗时",
//	    metrics.WithUnit("s"),
//	    metrics.WithBuckets(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1),
//	)
func WithBuckets(bounds ...float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = bounds
	}
}

// Label 指标标签。标签值应保持低基数，不要把用户身份这类值放进标签。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
