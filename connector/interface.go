// Package connector 为 gatelimit 提供外部存储的连接管理能力。
//
// 核心特性：
//   - 统一抽象：通过 Connector 接口提供一致的连接管理 API
//   - 类型安全：通过 TypedConnector[T] 泛型接口获取底层客户端
//   - 单机与集群：Redis 连接器统一返回 redis.UniversalClient
//   - 可观测性：可选启用 redisotel 的链路追踪与指标
//
// 基本使用：
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	if err != nil {
//		panic(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		panic(err)
//	}
//	client := conn.GetClient()
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期。ratelimit 等组件仅借用 Connector，不调用 Close()。
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 定义所有连接器的通用行为，方法均为并发安全
type Connector interface {
	// Connect 建立连接并做一次探活，可重复调用
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，可重复调用
	Close() error

	// HealthCheck 发送探活请求并更新健康状态缓存
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最后一次探活的结果，无阻塞
	IsHealthy() bool

	// Name 返回连接实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端实例
	GetClient() T
}

// RedisConnector Redis 连接器接口
//
// 单机和集群模式都以 redis.UniversalClient 暴露，限流脚本依赖 hash tag
// 保证同一身份的两个 key 落在同一个 slot。
type RedisConnector interface {
	TypedConnector[redis.UniversalClient]
}
