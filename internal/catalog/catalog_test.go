package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(Search{}, Directory{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	d, ok := reg.Get(" CDN ")
	if !ok || d.Name() != StrategyCDN {
		t.Fatalf("期望找到 cdn，实际 ok=%v", ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatalf("不期望找到 missing")
	}
	if _, err := NewRegistry(Search{}, Search{}); err == nil {
		t.Fatalf("期望重复注册报错")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatalf("期望 nil discoverer 报错")
	}
}

func TestFetchDetail(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte("<div>ok</div>"))
	}))
	defer srv.Close()

	body, err := FetchDetail(context.Background(), srv.Client(), srv.URL+"/detail/", "A1")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(body) != "<div>ok</div>" {
		t.Fatalf("body 不符合预期：%q", body)
	}
	if path != "/detail/A1/" {
		t.Fatalf("期望 path=/detail/A1/，实际=%q", path)
	}
	if _, err := FetchDetail(context.Background(), srv.Client(), srv.URL, ""); err == nil {
		t.Fatalf("期望空 id 报错")
	}
}
