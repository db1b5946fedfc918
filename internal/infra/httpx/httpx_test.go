package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewPageClient_SendsSessionCookieAndHeaders(t *testing.T) {
	var gotCookie, gotUA, gotXHR, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("PHPSESSID"); err == nil {
			gotCookie = c.Value
		}
		gotUA = r.Header.Get("User-Agent")
		gotXHR = r.Header.Get("X-Requested-With")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := NewPageClient(Session{CookieName: "PHPSESSID", Cookie: "abc", URLs: []string{srv.URL}}, time.Second)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := Get(context.Background(), c, srv.URL+"/browse/x", true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "ok" {
		t.Fatalf("body 不符合预期：%q", b)
	}
	if gotCookie != "abc" {
		t.Fatalf("期望携带 session cookie，实际 %q", gotCookie)
	}
	if gotUA == "" || gotAccept == "" {
		t.Fatalf("期望带默认浏览器头：ua=%q accept=%q", gotUA, gotAccept)
	}
	if gotXHR != "XMLHttpRequest" {
		t.Fatalf("期望 X-Requested-With=XMLHttpRequest，实际 %q", gotXHR)
	}
}

func TestNewClipClient_NoCookieJar(t *testing.T) {
	c := NewClipClient(0)
	if c.Jar != nil {
		t.Fatalf("clip client 不应携带 cookie jar")
	}
	if c.Timeout != DefaultClipTimeout {
		t.Fatalf("期望默认超时 %s，实际 %s", DefaultClipTimeout, c.Timeout)
	}
}

func TestNewPageClient_InvalidSessionURL(t *testing.T) {
	_, err := NewPageClient(Session{CookieName: "PHPSESSID", Cookie: "abc", URLs: []string{"not a url"}}, 0)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestGet_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), NewClipClient(time.Second), srv.URL, false)
	var hs *HTTPStatusError
	if !errors.As(err, &hs) || hs.StatusCode != http.StatusForbidden {
		t.Fatalf("期望 HTTPStatusError(403)，实际：%v", err)
	}
	if hs.Error() != "HTTP 403" {
		t.Fatalf("错误文本不符合预期：%q", hs.Error())
	}
}

func TestTransport_CallerHeaderWins(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClipClient(time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if gotUA != "custom" {
		t.Fatalf("调用方设置的头应优先，实际 %q", gotUA)
	}
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	// 首次立即放行，之后两次各间隔 ~40ms。
	if el := time.Since(start); el < 70*time.Millisecond {
		t.Fatalf("期望至少间隔 ~80ms，实际 %s", el)
	}
}

func TestPacer_ZeroIntervalNoWait(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		_ = p.Wait(context.Background())
	}
	if el := time.Since(start); el > 50*time.Millisecond {
		t.Fatalf("interval=0 不应限速，实际耗时 %s", el)
	}
}
