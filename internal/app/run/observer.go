package run

import (
	"time"

	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出
// - Observer 的实现必须并发安全：OnItemDone 可能来自多个 goroutine
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（discovery、metadata、acquire、aggregate）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnMetadataDone 在每条元数据抓取结束时调用（串行）。
	OnMetadataDone(idx, total int, id domain.ItemID, ok bool)
	// OnItemDone 在每条下载结束时调用（idx 是完成顺序）。
	OnItemDone(idx, total int, out domain.DownloadOutcome, dur time.Duration)
}

// 阶段名。
const (
	PhaseDiscovery = "discovery"
	PhaseMetadata  = "metadata"
	PhaseAcquire   = "acquire"
	PhaseAggregate = "aggregate"
)
