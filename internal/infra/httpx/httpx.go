package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultPageTimeout = 30 * time.Second
	DefaultClipTimeout = 120 * time.Second
)

// browserHeaders 是所有请求默认携带的头（调用方显式设置的同名头优先）。
var browserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Referer":         "https://shotdeck.com/",
}

// Transport 把“固定浏览器头”固化为统一策略。
//
// 约束：这一层不做重试；一次失败就是该请求的最终结果，由上层记录为条目级失败。
type Transport struct {
	Base   http.RoundTripper
	Header http.Header
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone 避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	for k, vs := range t.Header {
		if r.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return t.Base.RoundTrip(r)
}

// Session 描述登录态：站点用 session cookie 做访问控制。
type Session struct {
	CookieName string
	Cookie     string
	// URLs 是需要携带 cookie 的站点地址（按 host 写入 cookie jar）。
	URLs []string
}

// NewPageClient 构造用于列表/详情/生成触发的 HTTP client（带 cookie jar）。
//
// client 可并发使用：cookie 只在构造时写入，之后只读。
func NewPageClient(sess Session, timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(sess.CookieName)
	value := strings.TrimSpace(sess.Cookie)
	if name != "" && value != "" {
		for _, raw := range sess.URLs {
			u, err := url.Parse(strings.TrimSpace(raw))
			if err != nil || u.Host == "" {
				return nil, fmt.Errorf("session url 无效：%q", raw)
			}
			jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
		}
	}

	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return &http.Client{
		Transport: newTransport(),
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}

// NewClipClient 构造用于 clip 下载的 HTTP client。
// CDN 不需要登录态，因此不带 cookie jar；超时更长（视频体积大）。
func NewClipClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultClipTimeout
	}
	return &http.Client{
		Transport: newTransport(),
		Timeout:   timeout,
	}
}

func newTransport() *Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSHandshakeTimeout = 10 * time.Second
	base.ResponseHeaderTimeout = 20 * time.Second

	h := make(http.Header, len(browserHeaders))
	for k, v := range browserHeaders {
		h.Set(k, v)
	}
	return &Transport{Base: base, Header: h}
}

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Get 发起 GET 并读取完整 body；xhr=true 时附带 X-Requested-With（列表/生成接口要求）。
// 非 2xx 返回 *HTTPStatusError。
func Get(ctx context.Context, c *http.Client, u string, xhr bool) ([]byte, error) {
	resp, err := Open(ctx, c, u, xhr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Open 发起 GET 并返回响应（body 由调用方关闭，用于流式下载）。
// 非 2xx 时会关闭 body 并返回 *HTTPStatusError。
func Open(ctx context.Context, c *http.Client, u string, xhr bool) (*http.Response, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if xhr {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
