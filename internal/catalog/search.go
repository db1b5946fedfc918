package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/httpx"
	"github.com/derekmu8/video-scraping/internal/logging"
)

// DefaultPageSize 是列表接口每页返回的 shot 数。
const DefaultPageSize = 36

var totalShotsRE = regexp.MustCompile(`totalShots\s*=\s*(\d+)`)

// Search 通过分页搜索接口发现 shot：<URL>/page/<n>。
//
// 终止条件（任一满足即停，同页内三项都会检查）：
// - 已收集数 >= maxItems（截断为恰好 maxItems）
// - 已知总数且 page*pageSize >= total
// - 本页没有任何条目
type Search struct {
	Client   *http.Client
	URL      string
	PageSize int
	Filter   domain.ClipFilter
	Pacer    *httpx.Pacer
	Logger   *slog.Logger
}

func (Search) Name() string   { return StrategySearch }
func (Search) Method() string { return domain.MethodSearch }

func (s Search) Discover(ctx context.Context, maxItems int) ([]domain.ItemID, domain.DiscoveryStats) {
	st := domain.DiscoveryStats{Strategy: StrategySearch}
	log := s.Logger
	if log == nil {
		log = logging.Discard()
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	filter := s.Filter
	if filter == "" {
		filter = domain.ClipFilterWithClip
	}

	col := newCollector(maxItems)
	base := strings.TrimRight(s.URL, "/")

	for page := 1; ; page++ {
		if err := s.Pacer.Wait(ctx); err != nil {
			st.StopReason = domain.StopFetchFailed
			st.Error = err.Error()
			break
		}

		pageURL := base + "/page/" + strconv.Itoa(page)
		body, err := httpx.Get(ctx, s.Client, pageURL, true)
		if err != nil {
			st.StopReason = domain.StopFetchFailed
			st.Error = fmt.Sprintf("page %d: %v", page, err)
			log.Warn("listing page failed, stopping discovery", slog.Int("page", page), slog.Any("error", err))
			break
		}
		st.PagesScraped = page

		listing := ParseListing(body)
		if page == 1 && listing.Total != nil {
			st.TotalInCatalog = listing.Total
		}

		for _, e := range listing.Entries {
			if e.HasClip {
				st.WithClip++
			} else {
				st.WithoutClip++
			}
			if filter.Retain(e.HasClip) {
				col.add(e.ID)
			}
		}

		if page%50 == 0 {
			log.Debug("discovery progress", slog.Int("page", page), slog.Int("collected", len(col.ids)))
		}

		if col.full() {
			st.StopReason = domain.StopLimit
			break
		}
		// totalShots = 0 视为总数未知，继续翻页。
		if st.TotalInCatalog != nil && *st.TotalInCatalog > 0 && page*pageSize >= *st.TotalInCatalog {
			st.StopReason = domain.StopTotalReached
			break
		}
		// 按原始 div 数判断空页：id 不合法的条目被丢弃，但页面本身不是空的。
		if listing.Raw == 0 {
			st.StopReason = domain.StopEmptyPage
			break
		}
	}

	st.Duplicates = col.dups
	st.Collected = len(col.ids)
	return col.ids, st
}

// Listing 是一页列表的解析结果。
type Listing struct {
	// Entries 只含 id 合法的条目。
	Entries []domain.ListingEntry
	// Raw 是页面上 div.outerimage 的原始数量（含被丢弃的条目）。
	Raw int
	// Total 来自内联脚本 totalShots = N；缺失时为 nil。
	Total *int
}

// ParseListing 解析一页列表 HTML：
// - 条目：div.outerimage[data-shotid]，data-clip="1" 表示有 clip
// - 总数：内联脚本中的 totalShots = N（可能缺失）
//
// 解析失败不报错，只是得到更少的条目。
func ParseListing(html []byte) Listing {
	var l Listing
	if m := totalShotsRE.FindSubmatch(html); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			l.Total = &n
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return l
	}

	l.Entries = make([]domain.ListingEntry, 0, DefaultPageSize)
	doc.Find("div.outerimage").Each(func(_ int, s *goquery.Selection) {
		l.Raw++
		raw, _ := s.Attr("data-shotid")
		id, ok := domain.ParseItemID(raw)
		if !ok {
			return
		}
		clip, _ := s.Attr("data-clip")
		l.Entries = append(l.Entries, domain.ListingEntry{ID: id, HasClip: strings.TrimSpace(clip) == "1"})
	})
	return l
}
