package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/derekmu8/video-scraping/internal/domain"
)

// 策略名（配置中的 method）。
const (
	StrategySearch = "search"
	StrategyCDN    = "cdn"
)

// Discoverer 把“如何找到 shot”限制在各自实现内部；编排层只依赖有序的 ItemID 序列。
//
// 约束：
// - Discover 永不返回错误：网络/协议失败视为流结束，原因写入 DiscoveryStats
// - 输出顺序即站点给出的顺序，且不含重复 ItemID
// - maxItems<=0 表示不设上限
type Discoverer interface {
	Name() string
	Method() string
	Discover(ctx context.Context, maxItems int) ([]domain.ItemID, domain.DiscoveryStats)
}

// Registry 是 discoverer 的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Discoverer
}

func NewRegistry(ds ...Discoverer) (Registry, error) {
	byName := make(map[string]Discoverer, len(ds))
	for _, d := range ds {
		if d == nil {
			return Registry{}, fmt.Errorf("discoverer 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(d.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("discoverer.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 discoverer：%q", name)
		}
		byName[name] = d
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Discoverer, bool) {
	if r.byName == nil {
		return nil, false
	}
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// collector 负责去重与上限截断，两种策略共用。
type collector struct {
	max  int
	seen map[domain.ItemID]struct{}
	ids  []domain.ItemID
	dups int
}

func newCollector(max int) *collector {
	return &collector{max: max, seen: make(map[domain.ItemID]struct{}, 256)}
}

func (c *collector) add(id domain.ItemID) {
	if _, ok := c.seen[id]; ok {
		c.dups++
		return
	}
	c.seen[id] = struct{}{}
	c.ids = append(c.ids, id)
}

// full 判断是否达到上限；达到时把结果截断为恰好 max 条。
func (c *collector) full() bool {
	if c.max <= 0 || len(c.ids) < c.max {
		return false
	}
	c.ids = c.ids[:c.max]
	return true
}
