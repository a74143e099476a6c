package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/gatelimit/connector"
)

const redisImage = "redis:7-alpine"

// NewRedisContainerConfig 使用 testcontainers 启动 Redis 容器并返回配置
// 没有可用的 Docker 环境时跳过测试，容器生命周期由 t.Cleanup 管理
func NewRedisContainerConfig(t *testing.T) *connector.RedisConfig {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, redisImage)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return &connector.RedisConfig{
		Name:         "testcontainer-redis",
		Addr:         endpoint,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisContainerConnector 启动 Redis 容器并返回已连接的连接器
func NewRedisContainerConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	cfg := NewRedisContainerConfig(t)

	conn, err := connector.NewRedis(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to redis")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// NewRedisContainerClient 返回容器化 Redis 的原生客户端
func NewRedisContainerClient(t *testing.T) redis.UniversalClient {
	return NewRedisContainerConnector(t).GetClient()
}
