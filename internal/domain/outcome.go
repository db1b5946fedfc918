package domain

// OutcomeStatus 是单条下载的终态（三选一）。
type OutcomeStatus string

const (
	OutcomeExists     OutcomeStatus = "exists"
	OutcomeDownloaded OutcomeStatus = "downloaded"
	OutcomeFailed     OutcomeStatus = "failed"
)

// DownloadOutcome 由 acquire 层为每个 ItemID 恰好创建一次，创建后不可变。
type DownloadOutcome struct {
	ItemID    ItemID        `json:"shot_id"`
	LocalPath string        `json:"path,omitempty"`
	SizeBytes int64         `json:"size_bytes,omitempty"`
	Status    OutcomeStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
}

func ExistsOutcome(id ItemID, path string, size int64) DownloadOutcome {
	return DownloadOutcome{ItemID: id, LocalPath: path, SizeBytes: size, Status: OutcomeExists}
}

func DownloadedOutcome(id ItemID, path string, size int64) DownloadOutcome {
	return DownloadOutcome{ItemID: id, LocalPath: path, SizeBytes: size, Status: OutcomeDownloaded}
}

func FailedOutcome(id ItemID, err error) DownloadOutcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return DownloadOutcome{ItemID: id, Status: OutcomeFailed, Error: msg}
}

// OK 表示本地已有可用副本（exists 或 downloaded）。
func (o DownloadOutcome) OK() bool {
	return o.Status == OutcomeExists || o.Status == OutcomeDownloaded
}
