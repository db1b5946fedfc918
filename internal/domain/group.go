package domain

import (
	"encoding/json"
	"math"
)

const bytesPerMB = 1024 * 1024

// GroupSummary 是分组的代表性元数据，首条记录写入后不再变化（first-seen-wins）。
type GroupSummary struct {
	Director        []string `json:"director"`
	Cinematographer []string `json:"cinematographer"`
	Genre           []string `json:"genre"`
	Year            string   `json:"year,omitempty"`
}

// Group 是按 GroupKey 聚合的一组 shot；只由聚合器修改。
type Group struct {
	Key            string
	Summary        GroupSummary
	Items          []Record
	ItemCount      int
	TotalSizeBytes int64
}

// TotalSizeMB 只在输出时换算并保留两位小数，累加阶段一律用字节。
func (g *Group) TotalSizeMB() float64 { return MB(g.TotalSizeBytes) }

func (g *Group) MarshalJSON() ([]byte, error) {
	shots := g.Items
	if shots == nil {
		shots = []Record{}
	}
	return json.Marshal(struct {
		Metadata    GroupSummary `json:"metadata"`
		VideoCount  int          `json:"video_count"`
		TotalSizeMB float64      `json:"total_size_mb"`
		Shots       []Record     `json:"shots"`
	}{
		Metadata:    g.Summary,
		VideoCount:  g.ItemCount,
		TotalSizeMB: g.TotalSizeMB(),
		Shots:       shots,
	})
}

// MB 把字节换算为 MiB 并四舍五入到两位小数。
func MB(bytes int64) float64 { return Round(float64(bytes)/bytesPerMB, 2) }

// Round 四舍五入到 places 位小数。
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
