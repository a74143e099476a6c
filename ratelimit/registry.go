package ratelimit

import (
	"slices"
	"sync/atomic"

	"github.com/ceyewan/gatelimit/xerrors"
)

// DefaultFiltersRoute 未匹配路由且未配置 Default 时使用的兜底路由名
const DefaultFiltersRoute = "defaultFilters"

// DefaultRouteName 命中 Default 配置时在指标和日志中使用的路由名
const DefaultRouteName = "default"

// RouteConfig 单个路由的限流配置
type RouteConfig struct {
	ReplenishRate int      `mapstructure:"replenish_rate"` // 每秒补充令牌数，>= 1
	BurstCapacity int      `mapstructure:"burst_capacity"` // 桶容量，>= 1
	WhiteList     []string `mapstructure:"white_list"`     // 不受限流的身份

	whitelist map[string]struct{}
}

// RouteRule 带路由 id 的配置项。使用列表而非 map 承载路由，
// 是因为 viper 会把 map key 转成小写并按 "." 拆分。
type RouteRule struct {
	ID          string `mapstructure:"id"`
	RouteConfig `mapstructure:",squash"`
}

// Validate 校验补充速率与桶容量
func (c *RouteConfig) Validate() error {
	if c.ReplenishRate < 1 {
		return xerrors.Wrapf(ErrInvalidRoute, "replenish_rate must be >= 1, got %d", c.ReplenishRate)
	}
	if c.BurstCapacity < 1 {
		return xerrors.Wrapf(ErrInvalidRoute, "burst_capacity must be >= 1, got %d", c.BurstCapacity)
	}
	return nil
}

// Whitelisted 判断身份是否在白名单中
func (c RouteConfig) Whitelisted(identity string) bool {
	if c.whitelist != nil {
		_, ok := c.whitelist[identity]
		return ok
	}
	return slices.Contains(c.WhiteList, identity)
}

// compile 复制配置并构建白名单集合，返回的副本之后不再修改
func (c RouteConfig) compile() (*RouteConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := RouteConfig{
		ReplenishRate: c.ReplenishRate,
		BurstCapacity: c.BurstCapacity,
		WhiteList:     slices.Clone(c.WhiteList),
		whitelist:     make(map[string]struct{}, len(c.WhiteList)),
	}
	for _, id := range c.WhiteList {
		out.whitelist[id] = struct{}{}
	}
	return &out, nil
}

type routeSnapshot struct {
	routes map[string]*RouteConfig
	def    *RouteConfig
}

// Registry 路由配置注册表
//
// 配置以不可变快照的形式保存，Replace 整体替换快照，Lookup 无锁读取。
type Registry struct {
	snap atomic.Pointer[routeSnapshot]
}

// NewRegistry 创建注册表，任一路由校验失败则返回错误
func NewRegistry(rules []RouteRule, def *RouteConfig) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(rules, def); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace 校验并原子替换全部路由配置，失败时保留旧配置
func (r *Registry) Replace(rules []RouteRule, def *RouteConfig) error {
	snap := &routeSnapshot{routes: make(map[string]*RouteConfig, len(rules))}
	for _, rule := range rules {
		if rule.ID == "" {
			return xerrors.Wrap(ErrInvalidRoute, "route id is empty")
		}
		if _, dup := snap.routes[rule.ID]; dup {
			return xerrors.Wrapf(ErrInvalidRoute, "duplicate route %q", rule.ID)
		}
		cfg, err := rule.RouteConfig.compile()
		if err != nil {
			return xerrors.Wrapf(err, "route %q", rule.ID)
		}
		snap.routes[rule.ID] = cfg
	}
	if def != nil {
		cfg, err := def.compile()
		if err != nil {
			return xerrors.Wrap(err, "default route")
		}
		snap.def = cfg
	}
	r.snap.Store(snap)
	return nil
}

// Lookup 按 路由 → Default → defaultFilters 的顺序查找配置
//
// 返回值 name 是实际命中的配置名。都未命中时返回 ErrConfigurationMissing。
func (r *Registry) Lookup(routeID string) (cfg RouteConfig, name string, err error) {
	snap := r.snap.Load()
	if snap == nil {
		return RouteConfig{}, "", xerrors.Wrapf(ErrConfigurationMissing, "route %q", routeID)
	}
	if routeID != "" {
		if c, ok := snap.routes[routeID]; ok {
			return *c, routeID, nil
		}
	}
	if snap.def != nil {
		return *snap.def, DefaultRouteName, nil
	}
	if c, ok := snap.routes[DefaultFiltersRoute]; ok {
		return *c, DefaultFiltersRoute, nil
	}
	return RouteConfig{}, "", xerrors.Wrapf(ErrConfigurationMissing, "route %q", routeID)
}

// Routes 返回当前已配置的路由 id，按字典序排列
func (r *Registry) Routes() []string {
	snap := r.snap.Load()
	if snap == nil {
		return nil
	}
	ids := make([]string, 0, len(snap.routes))
	for id := range snap.routes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
