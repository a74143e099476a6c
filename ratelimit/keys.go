package ratelimit

// KeyScope 令牌桶的作用域
type KeyScope string

const (
	// KeyScopeIdentity 同一身份在所有路由上共享一个桶（默认）
	KeyScopeIdentity KeyScope = "identity"
	// KeyScopeRoute 每个 (路由, 身份) 独立一个桶
	KeyScopeRoute KeyScope = "route"
)

const keyPrefix = "request_rate_limiter"

// IdentityKeys 返回身份作用域下的桶 key：
//
//	request_rate_limiter.{<identity>}.tokens
//	request_rate_limiter.{<identity>}.timestamp
func IdentityKeys(identity string) BucketKeys {
	tag := keyPrefix + ".{" + identity + "}"
	return BucketKeys{
		Tokens:    tag + ".tokens",
		Timestamp: tag + ".timestamp",
	}
}

// deriveKeys 按作用域生成桶 key；路由作用域把路由 id 并入 hash tag
func deriveKeys(scope KeyScope, routeID, identity string) BucketKeys {
	if scope == KeyScopeRoute {
		return IdentityKeys(routeID + ":" + identity)
	}
	return IdentityKeys(identity)
}
