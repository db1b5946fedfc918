package domain

import (
	"encoding/json"
	"strings"
)

// Field 是规范化后的元数据字段（封闭集合）。
type Field int

const (
	FieldTitle Field = iota
	FieldYear
	FieldTimePeriod
	FieldTags
	FieldGenre
	FieldDirector
	FieldCinematographer
	FieldActors
	FieldProductionDesigner
	FieldCostumeDesigner
	FieldEditor
	FieldColorist
	FieldColor
	FieldAspectRatio
	FieldFormat
	FieldFrameSize
	FieldShotType
	FieldLensSize
	FieldComposition
	FieldLighting
	FieldLightingType
	FieldTimeOfDay
	FieldInteriorExterior
	FieldLocationType
	FieldSet
	FieldStoryLocation
	FieldFilmingLocation
	FieldMusicGenre
	FieldVideoGenre
	FieldStylist
	FieldProductionCompany

	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldTitle:              "title",
	FieldYear:               "year",
	FieldTimePeriod:         "time_period",
	FieldTags:               "tags",
	FieldGenre:              "genre",
	FieldDirector:           "director",
	FieldCinematographer:    "cinematographer",
	FieldActors:             "actors",
	FieldProductionDesigner: "production_designer",
	FieldCostumeDesigner:    "costume_designer",
	FieldEditor:             "editor",
	FieldColorist:           "colorist",
	FieldColor:              "color",
	FieldAspectRatio:        "aspect_ratio",
	FieldFormat:             "format",
	FieldFrameSize:          "frame_size",
	FieldShotType:           "shot_type",
	FieldLensSize:           "lens_size",
	FieldComposition:        "composition",
	FieldLighting:           "lighting",
	FieldLightingType:       "lighting_type",
	FieldTimeOfDay:          "time_of_day",
	FieldInteriorExterior:   "interior_exterior",
	FieldLocationType:       "location_type",
	FieldSet:                "set",
	FieldStoryLocation:      "story_location",
	FieldFilmingLocation:    "filming_location",
	FieldMusicGenre:         "music_genre",
	FieldVideoGenre:         "video_genre",
	FieldStylist:            "stylist",
	FieldProductionCompany:  "production_company",
}

// 多值字段：无论抽到几个值，都以序列存储。
var multiValued = [fieldCount]bool{
	FieldTags:               true,
	FieldGenre:              true,
	FieldDirector:           true,
	FieldCinematographer:    true,
	FieldActors:             true,
	FieldColor:              true,
	FieldShotType:           true,
	FieldLensSize:           true,
	FieldComposition:        true,
	FieldLighting:           true,
	FieldLightingType:       true,
	FieldSet:                true,
	FieldStoryLocation:      true,
	FieldFilmingLocation:    true,
	FieldEditor:             true,
	FieldColorist:           true,
	FieldProductionDesigner: true,
	FieldCostumeDesigner:    true,
	FieldMusicGenre:         true,
	FieldVideoGenre:         true,
	FieldStylist:            true,
	FieldProductionCompany:  true,
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	return fieldNames[f]
}

// Multi 表示该字段是否属于多值集合。
func (f Field) Multi() bool {
	if f < 0 || f >= fieldCount {
		return false
	}
	return multiValued[f]
}

// Fields 返回全部字段（按声明顺序）。
func Fields() []Field {
	out := make([]Field, 0, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		out = append(out, f)
	}
	return out
}

// ParseField 按规范名查找字段。
func ParseField(name string) (Field, bool) {
	for f := Field(0); f < fieldCount; f++ {
		if fieldNames[f] == name {
			return f, true
		}
	}
	return 0, false
}

// Value 是字段值：缺失、标量或有序序列三者之一。
// 零值表示缺失；空串/空序列永远不会被存储。
type Value struct {
	items []string
	seq   bool
}

// Scalar 构造标量值；空串得到零值。
func Scalar(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	return Value{items: []string{s}}
}

// Seq 构造序列值（复制输入，丢弃空元素）；全部为空时得到零值。
func Seq(items ...string) Value {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return Value{}
	}
	return Value{items: out, seq: true}
}

// ValueFor 按字段规则存储抽取到的值：
// 多值字段恒为序列；其余字段只有恰好一个值时才折叠为标量。
func ValueFor(f Field, values []string) Value {
	v := Seq(values...)
	if v.IsZero() {
		return v
	}
	if !f.Multi() && len(v.items) == 1 {
		return Value{items: v.items}
	}
	return v
}

func (v Value) IsZero() bool { return len(v.items) == 0 }

func (v Value) IsSeq() bool { return v.seq }

// String 返回标量本身；序列按 ", " 连接。
func (v Value) String() string { return strings.Join(v.items, ", ") }

// List 把值规范化为序列（返回副本）。
func (v Value) List() []string {
	if len(v.items) == 0 {
		return nil
	}
	return append([]string(nil), v.items...)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	if !v.seq {
		return json.Marshal(v.items[0])
	}
	return json.Marshal(v.items)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Scalar(s)
		return nil
	}
	var xs []string
	if err := json.Unmarshal(b, &xs); err != nil {
		return err
	}
	*v = Seq(xs...)
	return nil
}

// Record 是一个 shot 的规范化元数据（封闭字段集），可合并下载结果。
type Record struct {
	ItemID ItemID

	fields [fieldCount]Value

	// VideoURL 是默认 CDN 地址（输出用，便于追溯）。
	VideoURL  string
	LocalPath string
	SizeBytes int64
	HasSize   bool
}

func NewRecord(id ItemID) Record { return Record{ItemID: id} }

// Set 写入字段；零值等价于删除。
func (r *Record) Set(f Field, v Value) {
	if f < 0 || f >= fieldCount {
		return
	}
	r.fields[f] = v
}

func (r Record) Get(f Field) Value {
	if f < 0 || f >= fieldCount {
		return Value{}
	}
	return r.fields[f]
}

func (r Record) Has(f Field) bool { return !r.Get(f).IsZero() }

// Len 返回已存在的元数据字段数（不含 ItemID/下载信息）。
func (r Record) Len() int {
	n := 0
	for i := range r.fields {
		if !r.fields[i].IsZero() {
			n++
		}
	}
	return n
}

// Each 按字段声明顺序遍历已存在的字段。
func (r Record) Each(fn func(Field, Value)) {
	for f := Field(0); f < fieldCount; f++ {
		if !r.fields[f].IsZero() {
			fn(f, r.fields[f])
		}
	}
}

// MergeOutcome 把下载结果的本地路径/大小并入记录（失败结果不带路径，不会改动记录）。
func (r *Record) MergeOutcome(o DownloadOutcome) {
	if o.ItemID != r.ItemID || o.LocalPath == "" {
		return
	}
	r.LocalPath = o.LocalPath
	r.SizeBytes = o.SizeBytes
	r.HasSize = true
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, r.Len()+4)
	m["shot_id"] = r.ItemID
	if r.VideoURL != "" {
		m["video_url"] = r.VideoURL
	}
	r.Each(func(f Field, v Value) {
		m[f.String()] = v
	})
	if r.LocalPath != "" {
		m["local_path"] = r.LocalPath
	}
	if r.HasSize {
		m["size_bytes"] = r.SizeBytes
	}
	return json.Marshal(m)
}
