package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
)

// Store 管理输出目录下的本地产物：
//
//	<root>/videos/<id>_clip.mp4       已下载的 clip
//	<root>/cache/details/<id>.html    详情页 HTML 缓存
//
// 约束：ReadOnly=true 时只允许读。
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// VideoDir 返回 clip 目录。
func (s Store) VideoDir() string { return filepath.Join(s.Root, "videos") }

// ClipName 返回 id 对应的 clip 文件名（也是 CDN 上的文件名）。
func ClipName(id domain.ItemID) string { return string(id) + "_clip.mp4" }

// ClipPath 返回 id 对应的本地 clip 路径。
func (s Store) ClipPath(id domain.ItemID) string {
	return filepath.Join(s.VideoDir(), ClipName(id))
}

// LookupClip 检查本地 clip 是否已存在；存在则返回路径与大小。
func (s Store) LookupClip(id domain.ItemID) (path string, size int64, ok bool, err error) {
	path = s.ClipPath(id)
	size, ok, err = fsx.FileSize(path)
	if err != nil || !ok {
		return "", 0, false, err
	}
	return path, size, true, nil
}

// DetailHTMLPath 返回详情页缓存路径。
func (s Store) DetailHTMLPath(id domain.ItemID) string {
	return filepath.Join(s.Root, "cache", "details", string(id)+".html")
}

func (s Store) ReadDetailHTML(id domain.ItemID) ([]byte, bool, error) {
	b, err := os.ReadFile(s.DetailHTMLPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteDetailHTML(id domain.ItemID, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Root, "cache", "details"), string(id)+".html", html)
}
