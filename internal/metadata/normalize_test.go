package metadata

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/derekmu8/video-scraping/internal/domain"
)

func group(label, details string) string {
	return `<div class="detail-group"><p class="detail-type">` + label + `</p><div class="details">` + details + `</div></div>`
}

func TestNormalize_AliasesAndShapes(t *testing.T) {
	html := `<div class="shot-details">` +
		group("DP:", `<a href="#">Roger Deakins</a>`) +
		group("Director", `<a>Sam Mendes</a>`) +
		group("Genre:", `Drama, War ,`) +
		group("Year:", `2019`) +
		group("Aspect Ratio：", `<a>1.90</a><a>2.39</a>`) +
		group("Unknown Label", `whatever`) +
		group("Movie:", `<a>1917</a>`) +
		`</div>`

	rec := Normalize([]byte(html), "A1")

	if rec.ItemID != "A1" {
		t.Fatalf("期望 ItemID=A1，实际=%q", rec.ItemID)
	}
	cases := []struct {
		field domain.Field
		seq   bool
		want  []string
	}{
		{domain.FieldCinematographer, true, []string{"Roger Deakins"}},
		{domain.FieldDirector, true, []string{"Sam Mendes"}},
		{domain.FieldGenre, true, []string{"Drama", "War"}},
		{domain.FieldYear, false, []string{"2019"}},
		{domain.FieldAspectRatio, true, []string{"1.90", "2.39"}},
		{domain.FieldTitle, false, []string{"1917"}},
	}
	for _, tc := range cases {
		v := rec.Get(tc.field)
		if v.IsSeq() != tc.seq {
			t.Fatalf("%s: 期望 seq=%v，实际=%v", tc.field, tc.seq, v.IsSeq())
		}
		if !reflect.DeepEqual(v.List(), tc.want) {
			t.Fatalf("%s: 期望 %v，实际 %v", tc.field, tc.want, v.List())
		}
	}
	if rec.Len() != len(cases) {
		t.Fatalf("期望 %d 个字段，实际=%d", len(cases), rec.Len())
	}
}

func TestNormalize_DirectorAndDPMapSeparately(t *testing.T) {
	html := group("Director:", `<a>Denis Villeneuve</a>`) + group("DoP", `Greig Fraser`)
	rec := Normalize([]byte(html), "X")

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := map[string]any{
		"shot_id":         "X",
		"director":        []any{"Denis Villeneuve"},
		"cinematographer": []any{"Greig Fraser"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestNormalize_TitleFallbackToMovieLink(t *testing.T) {
	html := `<h2><a class="movie-link" href="/m/1">  Blade   Runner </a></h2>` + group("Year", "1982")
	rec := Normalize([]byte(html), "B")
	if got := rec.Get(domain.FieldTitle).String(); got != "Blade Runner" {
		t.Fatalf("期望 title=Blade Runner，实际=%q", got)
	}

	html = `<a class="movie-link">Fallback</a>` + group("Title:", "Real")
	rec = Normalize([]byte(html), "B")
	if got := rec.Get(domain.FieldTitle).String(); got != "Real" {
		t.Fatalf("详情块中的 title 应优先，实际=%q", got)
	}
}

func TestNormalize_DropsEmptyAndMalformed(t *testing.T) {
	html := group("Tags", `<a> </a><a></a>`) +
		group("Editor", ``) +
		`<div class="detail-group"><div class="details">no label</div></div>` +
		`<div class="detail-group"><p class="detail-type">Colorist</p></div>`
	rec := Normalize([]byte(html), "C")
	if rec.Len() != 0 {
		t.Fatalf("期望没有字段，实际=%d", rec.Len())
	}

	for _, in := range []string{"", "   ", "<<<not html", "<div class='detail-group'>"} {
		rec := Normalize([]byte(in), "D")
		if rec.ItemID != "D" || rec.Len() != 0 {
			t.Fatalf("输入 %q 期望空记录，实际 len=%d", in, rec.Len())
		}
	}
}

func TestNormalize_ScalarFieldWithManyValuesStaysSequence(t *testing.T) {
	rec := Normalize([]byte(group("Format", "35mm, Digital")), "E")
	v := rec.Get(domain.FieldFormat)
	if !v.IsSeq() || !reflect.DeepEqual(v.List(), []string{"35mm", "Digital"}) {
		t.Fatalf("期望序列 [35mm Digital]，实际 seq=%v %v", v.IsSeq(), v.List())
	}
}

func TestLookupLabel(t *testing.T) {
	for label, want := range map[string]domain.Field{
		"  CAST : ":         domain.FieldActors,
		"Interior/Exterior": domain.FieldInteriorExterior,
		"FILM::":            domain.FieldTitle,
		"time  of day":      domain.FieldTimeOfDay,
	} {
		got, ok := LookupLabel(label)
		if !ok || got != want {
			t.Fatalf("label %q: 期望 %s，实际 %s ok=%v", label, want, got, ok)
		}
	}
	if _, ok := LookupLabel("producer"); ok {
		t.Fatalf("未知 label 不应命中")
	}
}
