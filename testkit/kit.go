// Package testkit 提供测试用的通用依赖：日志、指标、上下文、唯一 ID 与容器化 Redis。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/gatelimit/clog"
	"github.com/ceyewan/gatelimit/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，Meter 在测试结束时关闭
func NewKit(t *testing.T) *Kit {
	ctx, cancel := NewContext(t, time.Minute)
	meter := NewMeter()
	t.Cleanup(func() {
		cancel()
		_ = meter.Shutdown(context.Background())
	})
	return &Kit{
		Ctx:    ctx,
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 返回开发格式的 logger，级别为 info，避免判定日志刷屏
func NewLogger() clog.Logger {
	cfg := clog.NewDevDefaultConfig("gatelimit")
	cfg.Level = "info"
	logger, err := clog.New(cfg)
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回启用状态、不监听端口的 Meter，可通过 Handler 抓取
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回 UUID v4 前 8 位，用于生成互不冲突的身份与路由名
func NewID() string {
	return uuid.New().String()[0:8]
}
