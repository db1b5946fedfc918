package run

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/derekmu8/video-scraping/internal/acquire"
	"github.com/derekmu8/video-scraping/internal/app"
	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
	"github.com/derekmu8/video-scraping/internal/logging"
	"github.com/derekmu8/video-scraping/internal/metadata"
)

// Result 是一次运行的完整结果。
type Result struct {
	Document domain.Document
	// Outcomes 与 discovery 顺序一致（不是完成顺序）。
	Outcomes   []domain.DownloadOutcome
	FinishedAt time.Time
}

// Failed 返回下载失败的条目数。
func (r Result) Failed() int { return r.Document.Stats.VideosFailed }

// Execute 执行一次完整运行：discovery → 元数据（串行限速）→ 并发下载 → 按 id 合并 → 分组聚合。
// 单条失败只影响该条，不会中断运行。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) Result {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) Result {
	started := deps.clock()
	runID := deps.newRunID()

	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With(slog.String("run_id", runID))

	if obs != nil {
		obs.OnStart(eff)
	}

	doc := domain.Document{ScrapedAt: started, RunID: runID}
	st := &doc.Stats

	// discovery
	t0 := time.Now()
	var ids []domain.ItemID
	if deps.Discoverer == nil {
		st.Discovery = domain.DiscoveryStats{StopReason: domain.StopFetchFailed, Error: "discoverer 未配置"}
	} else {
		doc.Method = deps.Discoverer.Method()
		ids, st.Discovery = deps.Discoverer.Discover(ctx, eff.Target)
	}
	discoveryDur := time.Since(t0)
	st.TotalShotsRequested = len(ids)

	log.Info("discovery finished",
		slog.String("strategy", st.Discovery.Strategy),
		slog.Int("collected", len(ids)),
		slog.Int("pages", st.Discovery.PagesScraped),
		slog.String("stop_reason", st.Discovery.StopReason),
		slog.Duration("elapsed", discoveryDur),
	)
	if st.Discovery.Error != "" {
		log.Warn("discovery ended early", slog.String("error", st.Discovery.Error))
	}
	if obs != nil {
		obs.OnPhaseDone(PhaseDiscovery, map[string]any{
			"strategy":    st.Discovery.Strategy,
			"pages":       st.Discovery.PagesScraped,
			"collected":   len(ids),
			"stop_reason": st.Discovery.StopReason,
		}, discoveryDur)
	}

	// metadata：严格串行，请求之间至少间隔 MetadataDelay。
	t1 := time.Now()
	records := make([]domain.Record, len(ids))
	if deps.Details == nil {
		st.MetadataSkipped = len(ids) > 0
		for i, id := range ids {
			records[i] = newRecord(eff, id)
		}
		if len(ids) > 0 {
			log.Warn("no session cookie, skipping metadata")
		}
	} else {
		pacer := httpx.NewPacer(eff.MetadataDelay)
		for i, id := range ids {
			rec, ok := fetchRecord(ctx, eff, deps, pacer, log, id)
			records[i] = rec
			// 页面抓到了但没有任何可识别字段，不算取到元数据。
			ok = ok && rec.Len() > 0
			if ok {
				st.MetadataRetrieved++
			}
			if obs != nil {
				obs.OnMetadataDone(i+1, len(ids), id, ok)
			}
		}
	}
	metadataDur := time.Since(t1)
	log.Info("metadata finished",
		slog.Int("retrieved", st.MetadataRetrieved),
		slog.Bool("skipped", st.MetadataSkipped),
		slog.Duration("elapsed", metadataDur),
	)
	if obs != nil {
		obs.OnPhaseDone(PhaseMetadata, map[string]any{
			"retrieved": st.MetadataRetrieved,
			"total":     len(ids),
			"skipped":   st.MetadataSkipped,
		}, metadataDur)
	}

	// acquire：worker pool；结果按 id 写回，不依赖完成顺序。
	workers := min(max(eff.Concurrency, 1), max(len(ids), 1))
	if obs != nil {
		obs.OnPhaseDone(PhaseAcquire, map[string]any{
			"workers":     workers,
			"total_items": len(ids),
		}, 0)
	}
	t2 := time.Now()
	outcomes := acquireAll(ctx, deps.Acquirer, ids, workers, obs)
	downloadDur := time.Since(t2)

	byID := make(map[domain.ItemID]domain.DownloadOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.ItemID] = o
		// videos_downloaded 统计本地可用的 clip（downloaded + exists）。
		switch o.Status {
		case domain.OutcomeDownloaded:
			st.VideosDownloaded++
		case domain.OutcomeExists:
			st.VideosDownloaded++
			st.VideosExisting++
		default:
			st.VideosFailed++
		}
		if o.OK() {
			st.TotalSizeBytes += o.SizeBytes
		}
	}
	log.Info("acquire finished",
		slog.Int("downloaded", st.VideosDownloaded),
		slog.Int("existing", st.VideosExisting),
		slog.Int("failed", st.VideosFailed),
		slog.Int64("bytes", st.TotalSizeBytes),
		slog.Duration("elapsed", downloadDur),
	)

	// merge + aggregate
	doc.Groups = make(map[string]*domain.Group)
	for i := range records {
		if o, ok := byID[records[i].ItemID]; ok {
			records[i].MergeOutcome(o)
		}
		app.Fold(doc.Groups, records[i])
	}

	finished := deps.clock()
	st.SetTiming(domain.StageDurations{
		Discovery: discoveryDur,
		Metadata:  metadataDur,
		Download:  downloadDur,
		Total:     finished.Sub(started),
	})
	doc.Finalize()

	log.Info("run finished",
		slog.Int("groups", st.UniqueGroups),
		slog.Float64("total_mb", st.TotalSizeMB),
		slog.Float64("total_seconds", st.Timing.TotalSeconds),
	)
	if obs != nil {
		obs.OnPhaseDone(PhaseAggregate, map[string]any{
			"groups":   st.UniqueGroups,
			"total_mb": st.TotalSizeMB,
		}, finished.Sub(started))
	}

	return Result{Document: doc, Outcomes: outcomes, FinishedAt: finished.UTC()}
}

func newRecord(eff config.EffectiveConfig, id domain.ItemID) domain.Record {
	rec := domain.NewRecord(id)
	rec.VideoURL = videoURL(eff, id)
	return rec
}

func videoURL(eff config.EffectiveConfig, id domain.ItemID) string {
	if eff.Endpoints.VideoBase == "" {
		return ""
	}
	return acquire.DefaultURL(eff.Endpoints.VideoBase, id)
}

// fetchRecord 取得单条元数据；任何失败都退化为只含 ItemID 的记录（ok=false）。
func fetchRecord(ctx context.Context, eff config.EffectiveConfig, deps Deps, pacer *httpx.Pacer, log *slog.Logger, id domain.ItemID) (domain.Record, bool) {
	html, ok := loadDetail(ctx, eff, deps, pacer, log, id)
	if !ok {
		return newRecord(eff, id), false
	}
	rec := metadata.Normalize(html, id)
	rec.VideoURL = videoURL(eff, id)
	return rec, true
}

func loadDetail(ctx context.Context, eff config.EffectiveConfig, deps Deps, pacer *httpx.Pacer, log *slog.Logger, id domain.ItemID) ([]byte, bool) {
	if eff.MetadataCache {
		b, ok, err := deps.Store.ReadDetailHTML(id)
		if err != nil {
			log.Warn("read detail cache failed", slog.String("shot_id", string(id)), slog.Any("error", err))
		}
		if ok {
			return b, true
		}
	}

	if err := pacer.Wait(ctx); err != nil {
		return nil, false
	}
	b, err := deps.Details.FetchDetail(ctx, id)
	if err != nil {
		log.Debug("metadata fetch failed", slog.String("shot_id", string(id)), slog.Any("error", err))
		return nil, false
	}
	if eff.MetadataCache {
		if err := deps.Store.WriteDetailHTML(id, b); err != nil {
			log.Warn("write detail cache failed", slog.String("shot_id", string(id)), slog.Any("error", err))
		}
	}
	return b, true
}

func acquireAll(ctx context.Context, acq Acquirer, ids []domain.ItemID, workers int, obs Observer) []domain.DownloadOutcome {
	out := make([]domain.DownloadOutcome, len(ids))
	if len(ids) == 0 {
		return out
	}
	if acq == nil {
		for i, id := range ids {
			out[i] = domain.FailedOutcome(id, errNoAcquirer)
		}
		return out
	}

	type job struct {
		idx int
		id  domain.ItemID
	}
	type result struct {
		idx int
		out domain.DownloadOutcome
		dur time.Duration
	}

	jobs := make(chan job)
	results := make(chan result, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				oneStarted := time.Now()
				o := acq.Acquire(ctx, j.id)
				if o.ItemID == "" {
					o.ItemID = j.id
				}
				results <- result{idx: j.idx, out: o, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for i, id := range ids {
			jobs <- job{idx: i, id: id}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		out[r.idx] = r.out
		if obs != nil {
			obs.OnItemDone(done, len(ids), r.out, r.dur)
		}
	}
	return out
}
