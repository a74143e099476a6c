package trace

// Config 链路追踪配置
//
//	trace:
//	  service_name: "gateway"
//	  endpoint: "localhost:4317"
//	  sampler: 0.1
//	  batcher: "batch"
//	  insecure: true
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP gRPC 地址，为空时使用 Discard
	Sampler     float64 `mapstructure:"sampler"`  // 0~1，父 Span 已采样时始终采样
	Batcher     string  `mapstructure:"batcher"`  // batch|simple
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
