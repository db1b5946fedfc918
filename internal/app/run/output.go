package run

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
	"github.com/derekmu8/video-scraping/internal/ledger"
)

// DocumentName 是输出目录下的最终产物文件名。
const DocumentName = "shotdeck_grouped.json"

var errNoAcquirer = errors.New("acquirer 未配置")

// WriteDocument 把文档原子写入 <dir>/shotdeck_grouped.json（覆盖上一次运行的结果）。
func WriteDocument(dir string, doc domain.Document) (string, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomic(dir, DocumentName, b); err != nil {
		return "", err
	}
	return filepath.Join(dir, DocumentName), nil
}

// LedgerEntry 把运行结果转换为 ledger 的 run 行与条目行（条目按 discovery 顺序）。
func LedgerEntry(res Result, documentPath string) (ledger.Run, []ledger.Item) {
	doc := res.Document
	st := doc.Stats

	groupOf := make(map[domain.ItemID]string, len(res.Outcomes))
	for key, g := range doc.Groups {
		for _, rec := range g.Items {
			groupOf[rec.ItemID] = key
		}
	}

	items := make([]ledger.Item, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		items = append(items, ledger.Item{
			ShotID:    o.ItemID,
			Status:    o.Status,
			SizeBytes: o.SizeBytes,
			Error:     o.Error,
			GroupKey:  groupOf[o.ItemID],
		})
	}

	return ledger.Run{
		ID:           doc.RunID,
		StartedAt:    doc.ScrapedAt,
		Method:       doc.Method,
		Requested:    st.TotalShotsRequested,
		Downloaded:   st.VideosDownloaded,
		Existing:     st.VideosExisting,
		Failed:       st.VideosFailed,
		Metadata:     st.MetadataRetrieved,
		TotalBytes:   st.TotalSizeBytes,
		Groups:       st.UniqueGroups,
		StopReason:   st.Discovery.StopReason,
		Duration:     res.FinishedAt.Sub(doc.ScrapedAt),
		DocumentPath: documentPath,
	}, items
}
