package catalog

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
	"github.com/derekmu8/video-scraping/internal/logging"
)

var clipHrefRE = regexp.MustCompile(`^([A-Z0-9]{8})_clip\.mp4$`)

// Directory 通过 CDN 的目录索引页发现“已缓存”的 clip。
// 只能看到缓存中的一部分 clip，但列出的都保证可直接下载。
type Directory struct {
	Client *http.Client
	URL    string
	Logger *slog.Logger
}

func (Directory) Name() string   { return StrategyCDN }
func (Directory) Method() string { return domain.MethodCDN }

func (d Directory) Discover(ctx context.Context, maxItems int) ([]domain.ItemID, domain.DiscoveryStats) {
	st := domain.DiscoveryStats{Strategy: StrategyCDN}
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}

	body, err := httpx.Get(ctx, d.Client, d.URL, false)
	if err != nil {
		st.StopReason = domain.StopFetchFailed
		st.Error = err.Error()
		log.Warn("cdn directory listing failed", slog.Any("error", err))
		return nil, st
	}
	st.PagesScraped = 1

	ids := ParseDirectory(body)
	st.WithClip = len(ids)
	if total := len(ids); total > 0 {
		st.TotalInCatalog = &total
	}

	col := newCollector(maxItems)
	for _, id := range ids {
		col.add(id)
	}
	st.StopReason = domain.StopListingParsed
	if col.full() {
		st.StopReason = domain.StopLimit
	}
	st.Duplicates = col.dups
	st.Collected = len(col.ids)
	return col.ids, st
}

// ParseDirectory 从目录索引页提取 <ID>_clip.mp4 链接中的 ID（去重 + 字典序）。
func ParseDirectory(html []byte) []domain.ItemID {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	set := map[domain.ItemID]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		// 兼容绝对/相对链接：只看最后一段。
		m := clipHrefRE.FindStringSubmatch(path.Base(href))
		if m == nil {
			return
		}
		if id, ok := domain.ParseItemID(m[1]); ok {
			set[id] = struct{}{}
		}
	})
	out := make([]domain.ItemID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
