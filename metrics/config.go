package metrics

import (
	"strings"

	"github.com/ceyewan/gatelimit/xerrors"
)

// Config 指标系统配置
//
// 典型配置（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "gateway"
//	  version: "v1.0.0"
//	  port: 9090
//	  path: "/metrics"
//	  runtime_metrics: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 写入 Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`

	// Port 大于 0 时启动独立的 Prometheus HTTP 服务器
	Port int `mapstructure:"port"`
	// Path 采集路径，必须以 "/" 开头
	Path string `mapstructure:"path"`

	// RuntimeMetrics 是否采集 Go 运行时指标（GC、goroutine、内存）
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
}

// NewDevDefaultConfig 开发环境配置：启用指标但不监听端口，通过 Meter.Handler 暴露
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "gatelimit"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "metrics path must start with '/': %q", c.Path)
	}
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "metrics port out of range: %d", c.Port)
	}
	return nil
}
