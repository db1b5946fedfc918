package metadata

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/derekmu8/video-scraping/internal/domain"
)

// aliases 把详情块的 label（小写、去尾部冒号）映射到规范字段；不在表里的 label 直接丢弃。
var aliases = map[string]domain.Field{
	"title": domain.FieldTitle,
	"movie": domain.FieldTitle,
	"film":  domain.FieldTitle,

	"year":        domain.FieldYear,
	"time period": domain.FieldTimePeriod,

	"tag":  domain.FieldTags,
	"tags": domain.FieldTags,

	"genre":  domain.FieldGenre,
	"genres": domain.FieldGenre,

	"director":  domain.FieldDirector,
	"directors": domain.FieldDirector,

	"cinematographer": domain.FieldCinematographer,
	"dop":             domain.FieldCinematographer,
	"dp":              domain.FieldCinematographer,

	"actor":  domain.FieldActors,
	"actors": domain.FieldActors,
	"cast":   domain.FieldActors,

	"production designer": domain.FieldProductionDesigner,
	"costume designer":    domain.FieldCostumeDesigner,
	"editor":              domain.FieldEditor,
	"editors":             domain.FieldEditor,
	"colorist":            domain.FieldColorist,
	"color":               domain.FieldColor,

	"aspect ratio":      domain.FieldAspectRatio,
	"format":            domain.FieldFormat,
	"frame size":        domain.FieldFrameSize,
	"shot type":         domain.FieldShotType,
	"lens size":         domain.FieldLensSize,
	"composition":       domain.FieldComposition,
	"lighting":          domain.FieldLighting,
	"lighting type":     domain.FieldLightingType,
	"time of day":       domain.FieldTimeOfDay,
	"interior/exterior": domain.FieldInteriorExterior,
	"location type":     domain.FieldLocationType,
	"set":               domain.FieldSet,
	"story location":    domain.FieldStoryLocation,
	"filming location":  domain.FieldFilmingLocation,

	"music genre":        domain.FieldMusicGenre,
	"video genre":        domain.FieldVideoGenre,
	"stylist":            domain.FieldStylist,
	"production company": domain.FieldProductionCompany,
}

// LookupLabel 按别名表解析 label（大小写、首尾空白与尾部冒号不敏感）。
func LookupLabel(label string) (domain.Field, bool) {
	f, ok := aliases[normLabel(label)]
	return f, ok
}

// Normalize 把一段详情 HTML 规范化为 Record。
//
// 约束：
// - 永不失败：结构缺失只会得到更少的字段
// - 同一字段出现多次时，后出现的块覆盖先出现的
// - 没有 title 时回退到 a.movie-link 的文本
func Normalize(html []byte, id domain.ItemID) domain.Record {
	rec := domain.NewRecord(id)
	if len(bytes.TrimSpace(html)) == 0 {
		return rec
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return rec
	}

	doc.Find("div.detail-group").Each(func(_ int, g *goquery.Selection) {
		label := g.Find("p.detail-type").First()
		if label.Length() == 0 {
			return
		}
		field, ok := LookupLabel(label.Text())
		if !ok {
			return
		}
		details := g.Find("div.details").First()
		if details.Length() == 0 {
			return
		}
		if v := domain.ValueFor(field, extractValues(details)); !v.IsZero() {
			rec.Set(field, v)
		}
	})

	if !rec.Has(domain.FieldTitle) {
		if t := normSpace(doc.Find("a.movie-link").First().Text()); t != "" {
			rec.Set(domain.FieldTitle, domain.Scalar(t))
		}
	}
	return rec
}

// extractValues：优先取 <a> 子元素；否则按逗号切分文本；否则整段文本作为一个值。
func extractValues(details *goquery.Selection) []string {
	if links := details.Find("a"); links.Length() > 0 {
		out := make([]string, 0, links.Length())
		links.Each(func(_ int, a *goquery.Selection) {
			if s := normSpace(a.Text()); s != "" {
				out = append(out, s)
			}
		})
		return out
	}

	text := normSpace(details.Text())
	if text == "" {
		return nil
	}
	if !strings.Contains(text, ",") {
		return []string{text}
	}
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var lower = cases.Lower(language.Und)

func normLabel(s string) string {
	s = normSpace(s)
	s = strings.TrimRight(s, ":：")
	return lower.String(strings.TrimSpace(s))
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
