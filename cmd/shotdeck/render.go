package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/derekmu8/video-scraping/internal/app"
	"github.com/derekmu8/video-scraping/internal/app/run"
	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/ledger"
)

// maxGroupRows 限制摘要中展示的分组数（完整结果在 JSON 文档里）。
const maxGroupRows = 20

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderSummary 渲染一次运行的终端摘要：统计表 + 最大的若干分组 + 失败条目。
func renderSummary(res run.Result, docPath string) string {
	doc := res.Document
	st := doc.Stats

	var b strings.Builder
	fmt.Fprintf(&b, "完成：method=%s run=%s\n", doc.Method, doc.RunID)

	stop := st.Discovery.StopReason
	if st.Discovery.Error != "" {
		stop += " (" + truncate(st.Discovery.Error, 60) + ")"
	}
	metadata := fmt.Sprintf("%d/%d", st.MetadataRetrieved, st.TotalShotsRequested)
	if st.MetadataSkipped {
		metadata = "skipped (no session)"
	}
	rows := [][]string{
		{"discovered", strconv.Itoa(st.TotalShotsRequested)},
		{"stop reason", stop},
		{"metadata", metadata},
		{"downloaded", strconv.Itoa(st.VideosDownloaded)},
		{"existing", strconv.Itoa(st.VideosExisting)},
		{"failed", strconv.Itoa(st.VideosFailed)},
		{"total size", humanize.IBytes(uint64(max(st.TotalSizeBytes, 0)))},
		{"groups", strconv.Itoa(st.UniqueGroups)},
		{"elapsed", formatSeconds(st.Timing.TotalSeconds)},
		{"throughput", fmt.Sprintf("%.3f videos/s, %.2f MB/s", st.Speed.VideosPerSecond, st.Speed.MBPerSecond)},
	}
	b.WriteString(renderTable([]string{"stat", "value"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	if len(doc.Groups) > 0 {
		b.WriteString(renderTable([]string{"group", "shots", "size"}, groupRows(doc.Groups, maxGroupRows), []columnAlignment{alignLeft, alignRight, alignRight}))
		b.WriteString("\n")
	}

	for _, o := range res.Outcomes {
		if o.Status == domain.OutcomeFailed {
			fmt.Fprintf(&b, "%s FAIL: %s\n", o.ItemID, truncate(o.Error, 160))
		}
	}
	fmt.Fprintf(&b, "document: %s\n", docPath)
	return b.String()
}

// groupRows 按 shot 数降序（同数按 key 升序）取前 limit 个分组。
func groupRows(groups map[string]*domain.Group, limit int) [][]string {
	keys := app.SortedKeys(groups)
	sortByCount(keys, groups)

	rows := make([][]string, 0, min(len(keys), limit)+1)
	for i, k := range keys {
		if limit > 0 && i >= limit {
			rows = append(rows, []string{fmt.Sprintf("… %d more", len(keys)-limit), "", ""})
			break
		}
		g := groups[k]
		rows = append(rows, []string{truncate(k, 60), strconv.Itoa(g.ItemCount), humanize.IBytes(uint64(max(g.TotalSizeBytes, 0)))})
	}
	return rows
}

func sortByCount(keys []string, groups map[string]*domain.Group) {
	// 插入排序保持稳定：keys 已按字典序排列。
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && groups[keys[j]].ItemCount > groups[keys[j-1]].ItemCount; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func renderHistory(runs []ledger.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			humanize.Time(r.StartedAt),
			r.Method,
			strconv.Itoa(r.Requested),
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.Existing),
			strconv.Itoa(r.Failed),
			humanize.IBytes(uint64(max(r.TotalBytes, 0))),
			strconv.Itoa(r.Groups),
			formatSeconds(r.Duration.Seconds()),
		})
	}
	return renderTable(
		[]string{"run", "started", "", "method", "shots", "ok", "existing", "failed", "size", "groups", "elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderItems(items []ledger.Item) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{string(it.ShotID), string(it.Status), humanize.IBytes(uint64(max(it.SizeBytes, 0))), truncate(it.GroupKey, 40), truncate(it.Error, 80)})
	}
	return renderTable([]string{"shot", "status", "size", "group", "error"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}

func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(sec * float64(time.Second)).Round(100 * time.Millisecond)
	return d.String()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
