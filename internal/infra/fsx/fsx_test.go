package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "a.txt", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	assertNoTemp(t, dir, "a.txt")
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(dir, "a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
	assertNoTemp(t, dir, "a.txt")
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件：err=%v", err)
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, errors.New("connection reset")
	}
	k := copy(p, strings.Repeat("x", r.n))
	r.n -= k
	return k, nil
}

func TestWriteStreamAtomic_SizeAndPartialFailure(t *testing.T) {
	dir := t.TempDir()

	n, err := WriteStreamAtomic(dir, "A1_clip.mp4", strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n != 10 {
		t.Fatalf("期望写入 10 字节，实际 %d", n)
	}

	// 读到一半断开：不应留下目标文件或临时文件。
	_, err = WriteStreamAtomic(dir, "B2_clip.mp4", &failingReader{n: 4})
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := os.Stat(filepath.Join(dir, "B2_clip.mp4")); !os.IsNotExist(err) {
		t.Fatalf("中途失败不应留下目标文件：err=%v", err)
	}
	assertNoTemp(t, dir, "B2_clip.mp4")
}

func TestWriteStreamAtomic_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.mp4"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	_, err := WriteStreamAtomic(dir, "a.mp4", strings.NewReader("x"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()

	if _, ok, err := FileSize(filepath.Join(dir, "missing")); err != nil || ok {
		t.Fatalf("不存在的文件：ok=%v err=%v", ok, err)
	}

	p := filepath.Join(dir, "f")
	if err := os.WriteFile(p, []byte("abc"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	size, ok, err := FileSize(p)
	if err != nil || !ok || size != 3 {
		t.Fatalf("期望 size=3，实际 size=%d ok=%v err=%v", size, ok, err)
	}

	if _, _, err := FileSize(dir); !IsPathTypeConflict(err) {
		t.Fatalf("目录应返回 PathTypeConflictError，实际：%v", err)
	}
}

func TestEnsureDir_FileConflict(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "videos")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := EnsureDir(p); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%v", err)
	}
}

func assertNoTemp(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}
