package ratelimit

import (
	"context"
	_ "embed"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/gatelimit/connector"
	"github.com/ceyewan/gatelimit/xerrors"
)

//go:embed token_bucket.lua
var tokenBucketLua string

// RedisStore 基于 Redis Lua 脚本的令牌桶存储
//
// 脚本通过 EVALSHA 执行，服务端缺少脚本时 go-redis 自动回退到 EVAL。
// 单机与集群客户端都可以使用，两个 key 的 hash tag 保证它们在同一个 slot。
type RedisStore struct {
	client redis.Scripter
	script *redis.Script
}

// NewRedisStore 基于连接器创建存储，连接生命周期仍由连接器管理
func NewRedisStore(conn connector.RedisConnector) (*RedisStore, error) {
	if conn == nil {
		return nil, xerrors.WithCode(ErrConnectorNil, "redis_connector_required")
	}
	return NewRedisStoreFromClient(conn.GetClient()), nil
}

// NewRedisStoreFromClient 基于任意支持脚本的客户端创建存储
func NewRedisStoreFromClient(client redis.Scripter) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Load 预先 SCRIPT LOAD，后续调用直接命中 EVALSHA
func (s *RedisStore) Load(ctx context.Context) error {
	if err := s.script.Load(ctx, s.client).Err(); err != nil {
		return xerrors.Wrap(err, "load token bucket script")
	}
	return nil
}

// Take 执行一次原子取令牌
func (s *RedisStore) Take(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome {
	reply, err := s.script.Run(ctx, s.client, []string{keys.Tokens, keys.Timestamp}, req.Args()...).Int64Slice()
	if err != nil {
		return storeFailure(xerrors.Wrap(err, "run token bucket script"))
	}
	if len(reply) != 2 {
		return storeFailure(xerrors.Wrapf(ErrUnexpectedReply, "got %d values", len(reply)))
	}
	return Outcome{
		Admitted:   reply[0] == 1,
		TokensLeft: reply[1],
	}
}

func (s *RedisStore) Name() string {
	return DriverRedis
}
