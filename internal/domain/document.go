package domain

import (
	"time"
)

const (
	MethodSearch = "comprehensive_api"
	MethodCDN    = "fast_cdn_cache"
)

// discovery 的终止原因。
const (
	StopLimit         = "limit"
	StopEmptyPage     = "empty_page"
	StopTotalReached  = "total_reached"
	StopFetchFailed   = "fetch_failed"
	StopListingParsed = "listing_parsed"
)

// DiscoveryStats 记录一次 discovery 的计数与终止原因。
type DiscoveryStats struct {
	Strategy       string `json:"strategy"`
	TotalInCatalog *int   `json:"total_in_catalog"`
	PagesScraped   int    `json:"pages_scraped"`
	WithClip       int    `json:"with_clip"`
	WithoutClip    int    `json:"without_clip"`
	Duplicates     int    `json:"duplicates"`
	Collected      int    `json:"collected"`
	StopReason     string `json:"stop_reason"`
	Error          string `json:"error,omitempty"`
}

type Timing struct {
	DiscoverySeconds float64 `json:"discovery_seconds"`
	MetadataSeconds  float64 `json:"metadata_seconds"`
	DownloadSeconds  float64 `json:"download_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

type Speed struct {
	VideosPerSecond float64 `json:"videos_per_second"`
	MBPerSecond     float64 `json:"mb_per_second"`
}

// PipelineStats 由各阶段在结束时各写一次，之后只读。
type PipelineStats struct {
	Discovery DiscoveryStats `json:"discovery"`

	TotalShotsRequested int     `json:"total_shots_requested"`
	VideosDownloaded    int     `json:"videos_downloaded"`
	VideosExisting      int     `json:"videos_existing"`
	VideosFailed        int     `json:"videos_failed"`
	MetadataRetrieved   int     `json:"metadata_retrieved"`
	MetadataSkipped     bool    `json:"metadata_skipped,omitempty"`
	TotalSizeBytes      int64   `json:"total_size_bytes"`
	TotalSizeMB         float64 `json:"total_size_mb"`
	UniqueGroups        int     `json:"unique_groups"`

	Timing Timing `json:"timing"`
	Speed  Speed  `json:"speed"`
}

// StageDurations 是各阶段耗时（未取整）。
type StageDurations struct {
	Discovery time.Duration
	Metadata  time.Duration
	Download  time.Duration
	Total     time.Duration
}

// SetTiming 写入耗时并派生吞吐：
// - videos_per_second 以总耗时为分母
// - mb_per_second 以下载阶段耗时为分母
func (s *PipelineStats) SetTiming(d StageDurations) {
	s.Timing = Timing{
		DiscoverySeconds: Round(d.Discovery.Seconds(), 1),
		MetadataSeconds:  Round(d.Metadata.Seconds(), 1),
		DownloadSeconds:  Round(d.Download.Seconds(), 1),
		TotalSeconds:     Round(d.Total.Seconds(), 1),
	}
	s.Speed = Speed{}
	if d.Total > 0 {
		s.Speed.VideosPerSecond = Round(float64(s.VideosDownloaded)/d.Total.Seconds(), 3)
	}
	if d.Download > 0 {
		s.Speed.MBPerSecond = Round(float64(s.TotalSizeBytes)/bytesPerMB/d.Download.Seconds(), 2)
	}
}

// Document 是落盘的最终产物（shotdeck_grouped.json）。
type Document struct {
	ScrapedAt time.Time         `json:"scraped_at"`
	RunID     string            `json:"run_id"`
	Method    string            `json:"method"`
	Stats     PipelineStats     `json:"stats"`
	Groups    map[string]*Group `json:"groups"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) groups 至少是空 map（JSON 输出 {} 而不是 null）
// 3) unique_groups / total_size_mb 由现有数据推导
func (d *Document) Finalize() {
	d.ScrapedAt = d.ScrapedAt.UTC()
	if d.Groups == nil {
		d.Groups = map[string]*Group{}
	}
	d.Stats.UniqueGroups = len(d.Groups)
	d.Stats.TotalSizeMB = MB(d.Stats.TotalSizeBytes)
}
