package acquire

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/cache"
)

type fakeSite struct {
	srv       *httptest.Server
	viewclip  func(w http.ResponseWriter, id string)
	clipBody  []byte
	viewHits  atomic.Int32
	clipHits  atomic.Int32
	lastClip  atomic.Value
	xhrMissed atomic.Bool
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	fs := &fakeSite{clipBody: bytes.Repeat([]byte("x"), 4096)}
	mux := http.NewServeMux()
	mux.HandleFunc("/viewclip/", func(w http.ResponseWriter, r *http.Request) {
		fs.viewHits.Add(1)
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			fs.xhrMissed.Store(true)
		}
		id := filepath.Base(r.URL.Path)
		if fs.viewclip == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fs.viewclip(w, id)
	})
	serveClip := func(w http.ResponseWriter, r *http.Request) {
		fs.clipHits.Add(1)
		fs.lastClip.Store(r.URL.Path)
		_, _ = w.Write(fs.clipBody)
	}
	mux.HandleFunc("/clips/", serveClip)
	mux.HandleFunc("/generated/", serveClip)
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSite) service(t *testing.T) *Service {
	t.Helper()
	return &Service{
		Store:          cache.New(t.TempDir(), false),
		Pages:          fs.srv.Client(),
		Clips:          fs.srv.Client(),
		ViewclipURL:    fs.srv.URL + "/viewclip",
		VideoBaseURL:   fs.srv.URL + "/clips",
		GenerationWait: time.Millisecond,
	}
}

func TestAcquire_UsesDescriptorURL(t *testing.T) {
	fs := newFakeSite(t)
	fs.viewclip = func(w http.ResponseWriter, id string) {
		fmt.Fprintf(w, `["%s_clip.mp4", "%s/generated/%s.mp4", 24, "mp4"]`, id, fs.srv.URL, id)
	}
	s := fs.service(t)
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error { slept = d; return nil }

	out := s.Acquire(context.Background(), "A1")
	if out.Status != domain.OutcomeDownloaded {
		t.Fatalf("期望 downloaded，实际=%+v", out)
	}
	if out.SizeBytes != int64(len(fs.clipBody)) {
		t.Fatalf("期望 size=%d，实际=%d", len(fs.clipBody), out.SizeBytes)
	}
	if got := fs.lastClip.Load(); got != "/generated/A1.mp4" {
		t.Fatalf("期望使用描述符 URL，实际=%v", got)
	}
	if slept != time.Millisecond {
		t.Fatalf("期望拿到描述符后等待 1ms，实际=%v", slept)
	}
	if fs.xhrMissed.Load() {
		t.Fatalf("生成接口请求缺少 X-Requested-With")
	}
	b, err := os.ReadFile(out.LocalPath)
	if err != nil || !bytes.Equal(b, fs.clipBody) {
		t.Fatalf("本地文件内容不符合预期：err=%v", err)
	}
	if filepath.Base(out.LocalPath) != "A1_clip.mp4" {
		t.Fatalf("本地文件名不符合预期：%q", out.LocalPath)
	}
}

func TestAcquire_FallsBackToDefaultURL(t *testing.T) {
	for name, handler := range map[string]func(w http.ResponseWriter, id string){
		"not found": nil,
		"empty":     func(w http.ResponseWriter, id string) {},
		"malformed": func(w http.ResponseWriter, id string) { _, _ = w.Write([]byte("{oops")) },
		"too short": func(w http.ResponseWriter, id string) { _, _ = w.Write([]byte(`["only"]`)) },
	} {
		t.Run(name, func(t *testing.T) {
			fs := newFakeSite(t)
			fs.viewclip = handler
			s := fs.service(t)
			s.sleep = func(context.Context, time.Duration) error {
				t.Fatalf("没有描述符时不应等待")
				return nil
			}

			out := s.Acquire(context.Background(), "B2")
			if out.Status != domain.OutcomeDownloaded {
				t.Fatalf("期望 downloaded，实际=%+v", out)
			}
			if got := fs.lastClip.Load(); got != "/clips/B2_clip.mp4" {
				t.Fatalf("期望默认 URL，实际=%v", got)
			}
		})
	}
}

func TestAcquire_ExistingFileSkipsNetwork(t *testing.T) {
	fs := newFakeSite(t)
	s := fs.service(t)

	first := s.Acquire(context.Background(), "C3")
	if first.Status != domain.OutcomeDownloaded {
		t.Fatalf("期望 downloaded，实际=%+v", first)
	}
	view, clip := fs.viewHits.Load(), fs.clipHits.Load()

	second := s.Acquire(context.Background(), "C3")
	if second.Status != domain.OutcomeExists {
		t.Fatalf("期望 exists，实际=%+v", second)
	}
	if second.SizeBytes != first.SizeBytes || second.LocalPath != first.LocalPath {
		t.Fatalf("exists 结果应与首次一致：first=%+v second=%+v", first, second)
	}
	if fs.viewHits.Load() != view || fs.clipHits.Load() != clip {
		t.Fatalf("第二次不应发出网络请求")
	}
}

func TestAcquire_DownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := &Service{
		Store:        cache.New(t.TempDir(), false),
		Clips:        srv.Client(),
		VideoBaseURL: srv.URL,
	}
	out := s.Acquire(context.Background(), "D4")
	if out.Status != domain.OutcomeFailed || out.Error != "HTTP 403" {
		t.Fatalf("期望 failed(HTTP 403)，实际=%+v", out)
	}
	if out.LocalPath != "" {
		t.Fatalf("失败结果不应带路径：%q", out.LocalPath)
	}
	if _, err := os.Stat(s.Store.ClipPath("D4")); !os.IsNotExist(err) {
		t.Fatalf("失败后不应留下文件：%v", err)
	}
}

func TestAcquire_SkipsGenerationWithoutViewclip(t *testing.T) {
	fs := newFakeSite(t)
	s := fs.service(t)
	s.ViewclipURL = ""

	out := s.Acquire(context.Background(), "E5")
	if !out.OK() {
		t.Fatalf("期望成功，实际=%+v", out)
	}
	if fs.viewHits.Load() != 0 {
		t.Fatalf("不应调用生成接口")
	}
}

func TestParseGeneration(t *testing.T) {
	g := ParseGeneration([]byte(`["a.mp4", "https://cdn.test/a.mp4", 23.976, null]`))
	if g == nil || g.Filename != "a.mp4" || g.URL != "https://cdn.test/a.mp4" || g.FrameRate != "23.976" || g.Type != "" {
		t.Fatalf("解析结果不符合预期：%+v", g)
	}
	for _, in := range []string{"", "null", "[]", `{"url":"x"}`, `["a"]`} {
		if g := ParseGeneration([]byte(in)); g != nil {
			t.Fatalf("输入 %q 期望 nil，实际=%+v", in, g)
		}
	}
}

func TestDefaultURL(t *testing.T) {
	if got := DefaultURL("https://cdn.test/clips/", "Z9"); got != "https://cdn.test/clips/Z9_clip.mp4" {
		t.Fatalf("DefaultURL 不符合预期：%q", got)
	}
}
