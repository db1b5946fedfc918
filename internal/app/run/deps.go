package run

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/derekmu8/video-scraping/internal/acquire"
	"github.com/derekmu8/video-scraping/internal/catalog"
	"github.com/derekmu8/video-scraping/internal/config"
	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/cache"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
)

// DetailSource 抓取单个 shot 的详情 HTML。
type DetailSource interface {
	FetchDetail(ctx context.Context, id domain.ItemID) ([]byte, error)
}

// Acquirer 获取单个 clip；实现必须可并发调用。
type Acquirer interface {
	Acquire(ctx context.Context, id domain.ItemID) domain.DownloadOutcome
}

// Deps 是一次运行的协作者。NewDeps 按配置构造真实实现；测试可直接替换。
type Deps struct {
	Discoverer catalog.Discoverer
	// Details 为 nil 时跳过元数据阶段（没有会话 cookie）。
	Details  DetailSource
	Acquirer Acquirer
	Store    cache.Store
	Logger   *slog.Logger

	now   func() time.Time
	runID func() string
}

type detailFetcher struct {
	client *http.Client
	base   string
}

func (f detailFetcher) FetchDetail(ctx context.Context, id domain.ItemID) ([]byte, error) {
	return catalog.FetchDetail(ctx, f.client, f.base, id)
}

// NewDeps 按最终配置构造 HTTP client、discoverer 与下载服务。
//
// - 页面类请求共用一个带 cookie jar 的 client；clip 下载用不带会话的 client
// - cdn 方法不调用生成接口（目录里列出的 clip 已经存在）
// - 没有会话时 Details 为 nil
func NewDeps(eff config.EffectiveConfig, log *slog.Logger) (Deps, error) {
	ep := eff.Endpoints
	pages, err := httpx.NewPageClient(httpx.Session{
		CookieName: eff.CookieName,
		Cookie:     eff.Cookie,
		URLs:       []string{ep.Search, ep.Viewclip, ep.MetadataBase},
	}, eff.RequestTimeout)
	if err != nil {
		return Deps{}, fmt.Errorf("初始化 http client 失败：%w", err)
	}
	clips := httpx.NewClipClient(eff.DownloadTimeout)
	store := cache.New(eff.OutputDir, false)

	reg, err := catalog.NewRegistry(
		catalog.Search{
			Client:   pages,
			URL:      ep.Search,
			PageSize: eff.PageSize,
			Filter:   eff.ClipFilter,
			Pacer:    httpx.NewPacer(eff.PageDelay),
			Logger:   log,
		},
		catalog.Directory{Client: pages, URL: ep.CDNDirectory, Logger: log},
	)
	if err != nil {
		return Deps{}, err
	}
	d, ok := reg.Get(eff.Method)
	if !ok {
		return Deps{}, fmt.Errorf("未知的 method：%q", eff.Method)
	}

	svc := &acquire.Service{
		Store:          store,
		Pages:          pages,
		Clips:          clips,
		VideoBaseURL:   ep.VideoBase,
		GenerationWait: eff.GenerationWait,
		Logger:         log,
	}
	if eff.Method == config.MethodSearch {
		svc.ViewclipURL = ep.Viewclip
	}

	deps := Deps{
		Discoverer: d,
		Acquirer:   svc,
		Store:      store,
		Logger:     log,
	}
	if eff.HasSession() {
		deps.Details = detailFetcher{client: pages, base: ep.MetadataBase}
	}
	return deps, nil
}

func (d Deps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d Deps) newRunID() string {
	if d.runID != nil {
		return d.runID()
	}
	return uuid.NewString()
}
