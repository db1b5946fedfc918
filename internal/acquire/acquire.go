package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/cache"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
	"github.com/derekmu8/video-scraping/internal/logging"
)

// DefaultGenerationWait 是拿到生成描述符后、开始下载前的等待时间。
const DefaultGenerationWait = 300 * time.Millisecond

// Service 负责“生成 → 下载”单个 clip。
//
// 约束：
// - 本地已有 <id>_clip.mp4 时直接返回 exists，不发任何网络请求
// - 生成接口的任何异常都视为“没有描述符”，回退到默认 CDN 路径
// - 不重试；失败对本次运行是终态
// - 可被多个 worker 并发调用（不持有可变状态）
type Service struct {
	Store cache.Store

	// Pages 带会话 cookie，只用于生成接口；Clips 不带会话，用于下载。
	Pages *http.Client
	Clips *http.Client

	// ViewclipURL 为空时跳过生成步骤（CDN 缓存中的 clip 可直接下载）。
	ViewclipURL    string
	VideoBaseURL   string
	GenerationWait time.Duration

	Logger *slog.Logger

	// sleep 便于测试替换。
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultURL 返回 clip 的默认 CDN 地址：<base>/<id>_clip.mp4。
func DefaultURL(base string, id domain.ItemID) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(cache.ClipName(id))
}

func (s *Service) Acquire(ctx context.Context, id domain.ItemID) domain.DownloadOutcome {
	log := s.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With(slog.String("shot_id", string(id)))

	if id == "" {
		return domain.FailedOutcome(id, errors.New("item id 不能为空"))
	}
	path, size, ok, err := s.Store.LookupClip(id)
	if err != nil {
		return domain.FailedOutcome(id, err)
	}
	if ok {
		log.Debug("clip exists, skipping download", slog.Int64("size_bytes", size))
		return domain.ExistsOutcome(id, path, size)
	}
	if s.Store.ReadOnly {
		return domain.FailedOutcome(id, cache.ErrReadOnly)
	}

	u := DefaultURL(s.VideoBaseURL, id)
	if gen := s.trigger(ctx, id); gen != nil {
		if gen.URL != "" {
			u = gen.URL
		}
		log.Debug("generation descriptor received", slog.String("url", u), slog.String("frame_rate", gen.FrameRate))
		if err := s.wait(ctx); err != nil {
			return domain.FailedOutcome(id, err)
		}
	}

	n, err := s.download(ctx, id, u)
	if err != nil {
		log.Warn("clip download failed", slog.String("url", u), slog.Any("error", err))
		return domain.FailedOutcome(id, err)
	}
	log.Debug("clip downloaded", slog.Int64("size_bytes", n))
	return domain.DownloadedOutcome(id, s.Store.ClipPath(id), n)
}

// trigger 调用生成接口；任何失败都返回 nil。
func (s *Service) trigger(ctx context.Context, id domain.ItemID) *domain.Generation {
	if s.ViewclipURL == "" || s.Pages == nil {
		return nil
	}
	endpoint := strings.TrimRight(s.ViewclipURL, "/") + "/" + url.PathEscape(string(id))
	body, err := httpx.Get(ctx, s.Pages, endpoint, true)
	if err != nil {
		return nil
	}
	gen := ParseGeneration(body)
	if gen != nil && gen.URL != "" {
		gen.URL = resolveURL(endpoint, gen.URL)
	}
	return gen
}

func (s *Service) wait(ctx context.Context) error {
	d := s.GenerationWait
	if d <= 0 {
		return nil
	}
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) download(ctx context.Context, id domain.ItemID, u string) (int64, error) {
	resp, err := httpx.Open(ctx, s.Clips, u, false)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := fsx.WriteStreamAtomic(s.Store.VideoDir(), cache.ClipName(id), resp.Body)
	if err != nil {
		return 0, fmt.Errorf("写入 clip 失败：%w", err)
	}
	return n, nil
}

// ParseGeneration 解析生成接口的响应：JSON 数组 [filename, url, framerate?, type?]。
// 空 body、非数组或少于两个元素时返回 nil。
func ParseGeneration(body []byte) *domain.Generation {
	var arr []any
	if err := json.Unmarshal(body, &arr); err != nil || len(arr) < 2 {
		return nil
	}
	g := &domain.Generation{
		Filename: str(arr[0]),
		URL:      strings.TrimSpace(str(arr[1])),
	}
	if len(arr) > 2 {
		g.FrameRate = str(arr[2])
	}
	if len(arr) > 3 {
		g.Type = str(arr[3])
	}
	return g
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func resolveURL(base, ref string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
