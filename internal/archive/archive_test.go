package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCompressDirNested(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.trace")
	writeFile(t, filepath.Join(src, "form.template"), "template")
	writeFile(t, filepath.Join(src, "corespace", "run1.core"), "samples")
	dst := filepath.Join(dir, "run.zip")

	if err := CompressDir(src, dst); err != nil {
		t.Fatalf("CompressDir: %v", err)
	}

	zr, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer func() { _ = zr.Close() }()

	got := map[string]string{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			got[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		got[f.Name] = string(b)
	}
	if got["run.trace/form.template"] != "template" {
		t.Fatalf("missing template entry: %+v", got)
	}
	if got["run.trace/corespace/run1.core"] != "samples" {
		t.Fatalf("missing nested entry: %+v", got)
	}
}

func TestCompressSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.trace")
	writeFile(t, src, "flat")
	dst := filepath.Join(dir, "report.zip")

	if err := CompressDir(src, dst); err != nil {
		t.Fatalf("CompressDir: %v", err)
	}
	zr, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer func() { _ = zr.Close() }()
	if len(zr.File) != 1 || zr.File[0].Name != "report.trace" {
		t.Fatalf("unexpected entries: %v", zr.File)
	}
}

func TestCompressMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.zip")
	if err := CompressDir(filepath.Join(dir, "nope.trace"), dst); err == nil {
		t.Fatalf("expected error for missing source")
	}
	if Exists(dst) {
		t.Fatalf("partial archive left behind")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists("") {
		t.Fatalf("empty path must not exist")
	}
	if Exists(filepath.Join(dir, "missing")) {
		t.Fatalf("missing path reported as existing")
	}
	p := filepath.Join(dir, "f")
	writeFile(t, p, "x")
	if !Exists(p) {
		t.Fatalf("existing path reported as missing")
	}
}
