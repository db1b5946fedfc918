package domain

import (
	"strings"
	"unicode"
)

// ItemID 是 shot 在目录站内的唯一标识（不透明 token）。
//
// 约束：ItemID 会直接拼进本地文件名（<id>_clip.mp4），因此拒绝空串、空白字符、
// 路径分隔符与 ".."；宁可丢弃一条，也不允许写出目录之外。
type ItemID string

// ParseItemID 校验并返回 ItemID（会先 TrimSpace）。
func ParseItemID(s string) (ItemID, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || strings.Contains(s, "..") {
		return "", false
	}
	for _, r := range s {
		if r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", false
		}
	}
	return ItemID(s), true
}

// ListingEntry 是从一页列表中抽取出的一条记录（用完即弃）。
type ListingEntry struct {
	ID      ItemID
	HasClip bool
}

// ClipFilter 决定 discovery 保留哪一类条目；同一次运行只能二选一。
type ClipFilter string

const (
	ClipFilterWithClip    ClipFilter = "with_clip"
	ClipFilterWithoutClip ClipFilter = "without_clip"
)

// Retain 判断一条 hasClip 的条目是否应被保留。
func (f ClipFilter) Retain(hasClip bool) bool {
	if f == ClipFilterWithoutClip {
		return !hasClip
	}
	return hasClip
}

// Generation 是生成触发接口返回的描述符：[filename, url, framerate?, type?]。
// nil 表示“没有描述符”，调用方回退到默认 CDN 路径。
type Generation struct {
	Filename  string
	URL       string
	FrameRate string
	Type      string
}
