package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
)

// DetailURL 返回 shot 详情片段的地址：<base>/<id>/。
func DetailURL(base string, id domain.ItemID) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(string(id)) + "/"
}

// FetchDetail 抓取详情片段 HTML（不缓存、不重试、不限速，由上层统一控制）。
func FetchDetail(ctx context.Context, c *http.Client, base string, id domain.ItemID) ([]byte, error) {
	if id == "" {
		return nil, errors.New("item id 不能为空")
	}
	return httpx.Get(ctx, c, DetailURL(base, id), false)
}
