package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/time/rate"

	"github.com/ceyewan/gatelimit/xerrors"
)

// MemoryStore 进程内令牌桶存储
//
// 每个桶是一个 rate.Limiter，保存在 otter 缓存中，空闲超过补满时间后被淘汰，
// 与 Redis 脚本设置的 key 过期时间一致。只在单实例网关或测试中使用，
// 多个实例之间不共享状态。
type MemoryStore struct {
	buckets *otter.Cache[string, *memoryBucket]
}

type memoryBucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	rate     int
	capacity int
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore(cfg *MemoryConfig) (*MemoryStore, error) {
	if cfg == nil {
		cfg = &MemoryConfig{}
	}
	cfg.setDefaults()

	cache, err := otter.New(&otter.Options[string, *memoryBucket]{
		MaximumSize: cfg.MaximumSize,
		// 每次 Take 都会通过 SetExpiresAfter 重置为该桶的补满时间
		ExpiryCalculator: otter.ExpiryWriting[string, *memoryBucket](time.Minute),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build otter cache")
	}
	return &MemoryStore{buckets: cache}, nil
}

// Take 在桶锁内完成补充、扣减与剩余令牌的读取
func (s *MemoryStore) Take(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome {
	if err := ctx.Err(); err != nil {
		return storeFailure(err)
	}
	if req.Rate < 1 || req.Capacity < 1 {
		return storeFailure(xerrors.Wrapf(ErrInvalidRoute, "rate=%d capacity=%d", req.Rate, req.Capacity))
	}

	at := time.Unix(req.Now, 0)
	b := s.bucket(keys.Tokens, req)

	b.mu.Lock()
	if b.rate != req.Rate || b.capacity != req.Capacity {
		b.limiter.SetLimitAt(at, rate.Limit(req.Rate))
		b.limiter.SetBurstAt(at, req.Capacity)
		b.rate, b.capacity = req.Rate, req.Capacity
	}
	admitted := b.limiter.AllowN(at, req.Requested)
	left := b.limiter.TokensAt(at)
	b.mu.Unlock()

	s.buckets.SetExpiresAfter(keys.Tokens, refillTime(req.Rate, req.Capacity))

	return Outcome{
		Admitted:   admitted,
		TokensLeft: int64(math.Floor(math.Max(0, left))),
	}
}

func (s *MemoryStore) bucket(key string, req TakeRequest) *memoryBucket {
	if b, ok := s.buckets.GetIfPresent(key); ok {
		return b
	}
	fresh := &memoryBucket{
		limiter:  rate.NewLimiter(rate.Limit(req.Rate), req.Capacity),
		rate:     req.Rate,
		capacity: req.Capacity,
	}
	b, _ := s.buckets.SetIfAbsent(key, fresh)
	return b
}

// Len 返回当前保留的桶数量（近似值）
func (s *MemoryStore) Len() int {
	return s.buckets.EstimatedSize()
}

// Close 丢弃所有桶
func (s *MemoryStore) Close() error {
	s.buckets.InvalidateAll()
	return nil
}

func (s *MemoryStore) Name() string {
	return DriverMemory
}

// refillTime 从空桶补满所需的时间，向上取整到秒，至少 1 秒
func refillTime(ratePerSec, capacity int) time.Duration {
	secs := (capacity + ratePerSec - 1) / ratePerSec
	return time.Duration(max(1, secs)) * time.Second
}
