package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/derekmu8/video-scraping/internal/app/run"
	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端上的进度输出。
//
// 约束：
// - 只写 w（stderr 优先），不碰 stdout 的 JSON 契约
// - run 层只发事件，这里决定如何展示
// - 长时间没有条目完成时定期输出 keepalive
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers    int
	total      int
	done       int
	downloaded int
	existing   int
	fail       int

	// metadataEvery 控制元数据阶段每隔多少条输出一行。
	metadataEvery int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		metadataEvery:      25,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] shotdeck run (%s)\n", now.Format("15:04:05"), eff.Method)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  output: %s\n", eff.OutputDir)
	fmt.Fprintf(p.w, "  method: %s\n", eff.Method)
	fmt.Fprintf(p.w, "  target: %s\n", formatTarget(eff.Target))
	if eff.Method == config.MethodSearch {
		fmt.Fprintf(p.w, "  clip_filter: %s\n", eff.ClipFilter)
	}
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  session: %s\n", formatSession(eff))
	fmt.Fprintf(p.w, "  metadata_cache: %s\n", onOff(eff.MetadataCache))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.PhaseDiscovery:
		fmt.Fprintf(p.w, "发现: strategy=%s pages=%d collected=%d stop=%s (%s)\n",
			stringField(fields, "strategy"),
			intField(fields, "pages"),
			intField(fields, "collected"),
			stringField(fields, "stop_reason"),
			formatShortDuration(dur),
		)
	case run.PhaseMetadata:
		if skipped, _ := fields["skipped"].(bool); skipped {
			fmt.Fprintln(p.w, "元数据: 跳过（未配置会话 cookie）")
			break
		}
		fmt.Fprintf(p.w, "元数据: retrieved=%d/%d (%s)\n",
			intField(fields, "retrieved"), intField(fields, "total"), formatShortDuration(dur),
		)
	case run.PhaseAcquire:
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		p.done = 0
		fmt.Fprintf(p.w, "下载: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case run.PhaseAggregate:
		fmt.Fprintf(p.w, "\n聚合: groups=%d total=%.2f MB (%s)\n",
			intField(fields, "groups"), floatField(fields, "total_mb"), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnMetadataDone(idx, total int, id domain.ItemID, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !ok {
		fmt.Fprintf(p.w, "  [%d/%d] %s 元数据抓取失败\n", idx, total, id)
		p.lastPrinted = time.Now()
		return
	}
	if p.metadataEvery > 0 && idx%p.metadataEvery != 0 && idx != total {
		return
	}
	fmt.Fprintf(p.w, "  元数据进度: %d/%d elapsed=%s\n", idx, total, formatElapsed(time.Since(p.startedAt)))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, out domain.DownloadOutcome, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch out.Status {
	case domain.OutcomeDownloaded:
		p.downloaded++
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s (%s)\n", idx, total, out.ItemID, formatMB(out.SizeBytes), formatShortDuration(dur))
	case domain.OutcomeExists:
		p.existing++
		fmt.Fprintf(p.w, "[%d/%d] %s EXISTS %s\n", idx, total, out.ItemID, formatMB(out.SizeBytes))
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL: %s (%s)\n", idx, total, out.ItemID, truncate(out.Error, 160), formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive（可重复调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := min(p.workers, p.total-p.done)
					fmt.Fprintf(p.w, "进度: done=%d/%d downloaded=%d existing=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.downloaded, p.existing, p.fail, active, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatTarget(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

// formatSession 只展示是否配置，不回显 cookie 值。
func formatSession(eff config.EffectiveConfig) string {
	if !eff.HasSession() {
		if eff.Method == config.MethodCDN {
			return "off (cdn 不需要)"
		}
		return "off"
	}
	return "on (" + eff.CookieName + "=***)"
}

func formatMB(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	return fmt.Sprintf("%.2fMB", domain.MB(bytes))
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

func floatField(fields map[string]any, key string) float64 {
	switch x := fields[key].(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	default:
		return float64(intField(fields, key))
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}
