package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/derekmu8/video-scraping/internal/app/run"
	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
)

func TestProgressUI_RedactsSession(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.OnStart(config.EffectiveConfig{
		OutputDir:   "/tmp/out",
		Method:      config.MethodSearch,
		Target:      0,
		Concurrency: 3,
		ClipFilter:  domain.ClipFilterWithClip,
		CookieName:  "PHPSESSID",
		Cookie:      "super-secret",
	})
	got := buf.String()
	if strings.Contains(got, "super-secret") {
		t.Fatalf("不应输出 cookie 值：%s", got)
	}
	for _, want := range []string{"PHPSESSID=***", "target: unlimited", "clip_filter: with_clip"} {
		if !strings.Contains(got, want) {
			t.Fatalf("缺少 %q：%s", want, got)
		}
	}
}

func TestProgressUI_ItemLines(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.OnPhaseDone(run.PhaseAcquire, map[string]any{"workers": 2, "total_items": 3}, 0)
	ui.OnItemDone(1, 3, domain.DownloadedOutcome("A1", "/x/A1_clip.mp4", 1024*1024), time.Second)
	ui.OnItemDone(2, 3, domain.ExistsOutcome("B2", "/x/B2_clip.mp4", 10), 0)
	ui.OnItemDone(3, 3, domain.FailedOutcome("C3", errors.New("HTTP 403")), time.Second)
	ui.Stop()
	ui.Stop()

	got := buf.String()
	for _, want := range []string{
		"下载: workers=2 total_items=3",
		"[1/3] A1 OK 1.00MB (1.0s)",
		"[2/3] B2 EXISTS",
		"[3/3] C3 FAIL: HTTP 403",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("缺少 %q：\n%s", want, got)
		}
	}
	if ui.tickerStarted {
		t.Fatalf("全部完成后 ticker 应已停止")
	}
}

func TestProgressUI_MetadataThrottled(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.metadataEvery = 2
	ui.OnMetadataDone(1, 3, "A", true)
	ui.OnMetadataDone(2, 3, "B", true)
	ui.OnMetadataDone(3, 3, "C", false)

	got := buf.String()
	if strings.Count(got, "元数据进度") != 1 || !strings.Contains(got, "元数据进度: 2/3") {
		t.Fatalf("进度行应被节流：\n%s", got)
	}
	if !strings.Contains(got, "[3/3] C 元数据抓取失败") {
		t.Fatalf("失败条目总是输出：\n%s", got)
	}
}

func TestProgressUI_MetadataSkipped(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.OnPhaseDone(run.PhaseMetadata, map[string]any{"retrieved": 0, "total": 4, "skipped": true}, 0)
	if !strings.Contains(buf.String(), "跳过") {
		t.Fatalf("期望提示跳过元数据：%q", buf.String())
	}
}

func TestFieldHelpers(t *testing.T) {
	fields := map[string]any{"a": int64(3), "b": 1.5, "c": " x ", "d": "nope"}
	if intField(fields, "a") != 3 || intField(fields, "d") != 0 || intField(nil, "a") != 0 {
		t.Fatalf("intField 不符合预期")
	}
	if floatField(fields, "b") != 1.5 || floatField(fields, "a") != 3 {
		t.Fatalf("floatField 不符合预期")
	}
	if stringField(fields, "c") != "x" || stringField(fields, "a") != "" {
		t.Fatalf("stringField 不符合预期")
	}
	if formatElapsed(3723*time.Second) != "01:02:03" || formatShortDuration(-time.Second) != "0.0s" {
		t.Fatalf("时长格式不符合预期")
	}
}
