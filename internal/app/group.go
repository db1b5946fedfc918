package app

import (
	"sort"
	"strings"

	"github.com/derekmu8/video-scraping/internal/domain"
)

// UnknownGroup 是无法推断分组时的兜底 key。
const UnknownGroup = "Unknown"

// GroupKey 从记录推导分组 key，按固定顺序取第一个成功的：
// 1) title 原样
// 2) actors 以 ", " 连接；有 year（否则 time_period）时追加 " (<year>)"
// 3) director 以 ", " 连接
// 4) "Unknown"
func GroupKey(rec domain.Record) string {
	if t := rec.Get(domain.FieldTitle); !t.IsZero() {
		return t.String()
	}
	if actors := rec.Get(domain.FieldActors).List(); len(actors) > 0 {
		key := strings.Join(actors, ", ")
		if y := yearOf(rec); y != "" {
			key += " (" + y + ")"
		}
		return key
	}
	if directors := rec.Get(domain.FieldDirector).List(); len(directors) > 0 {
		return strings.Join(directors, ", ")
	}
	return UnknownGroup
}

// Fold 把一条记录并入 groups（原地修改）。
//
// - 首次出现的 key 用该记录初始化 summary，之后不再覆盖
// - 记录按调用顺序追加
// - 只有已知大小的记录才计入 TotalSizeBytes
func Fold(groups map[string]*domain.Group, rec domain.Record) {
	key := GroupKey(rec)
	g, ok := groups[key]
	if !ok {
		g = &domain.Group{Key: key, Summary: summaryOf(rec)}
		groups[key] = g
	}
	g.Items = append(g.Items, rec)
	g.ItemCount++
	if rec.HasSize {
		g.TotalSizeBytes += rec.SizeBytes
	}
}

// SortedKeys 返回按 key 字典序排列的分组 key（用于稳定展示）。
func SortedKeys(groups map[string]*domain.Group) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func summaryOf(rec domain.Record) domain.GroupSummary {
	return domain.GroupSummary{
		Director:        listOrEmpty(rec.Get(domain.FieldDirector)),
		Cinematographer: listOrEmpty(rec.Get(domain.FieldCinematographer)),
		Genre:           listOrEmpty(rec.Get(domain.FieldGenre)),
		Year:            yearOf(rec),
	}
}

func yearOf(rec domain.Record) string {
	if y := rec.Get(domain.FieldYear); !y.IsZero() {
		return y.String()
	}
	return rec.Get(domain.FieldTimePeriod).String()
}

func listOrEmpty(v domain.Value) []string {
	if xs := v.List(); xs != nil {
		return xs
	}
	return []string{}
}
