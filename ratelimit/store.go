package ratelimit

import "context"

// BucketKeys 一个令牌桶在存储中的两个 key
//
// 两个 key 共享同一个 hash tag（花括号内的部分），在 Redis Cluster 中总是落在同一个 slot。
type BucketKeys struct {
	Tokens    string
	Timestamp string
}

// TakeRequest 单次取令牌的参数，字段顺序即脚本 ARGV 的顺序
type TakeRequest struct {
	Rate      int   // 每秒补充的令牌数
	Capacity  int   // 桶容量
	Now       int64 // 当前 Unix 秒
	Requested int   // 本次需要的令牌数
}

// Args 返回脚本参数 (rate, capacity, now, requested)
func (r TakeRequest) Args() []any {
	return []any{r.Rate, r.Capacity, r.Now, r.Requested}
}

// Outcome 存储调用的结果
//
// Err 不为 nil 时表示存储故障，Admitted 与 TokensLeft 无意义，由 Limiter 按放行处理。
type Outcome struct {
	Admitted   bool
	TokensLeft int64
	Err        error
}

// Failed 是否为存储故障
func (o Outcome) Failed() bool {
	return o.Err != nil
}

func storeFailure(err error) Outcome {
	return Outcome{Err: err}
}

// Store 原子令牌桶存储
//
// Take 必须把读取、补充、扣减、写回作为一个不可分割的操作完成。
// 实现方不得把 error 以 panic 抛出，所有故障都通过 Outcome.Err 返回。
type Store interface {
	Take(ctx context.Context, keys BucketKeys, req TakeRequest) Outcome

	// Name 用于日志与指标，如 "redis"、"memory"
	Name() string
}
