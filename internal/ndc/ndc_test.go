package ndc

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func newTestDownloader(url string) *Downloader {
	d := NewDownloader(url, zerolog.Nop())
	d.client.RetryWaitMin = time.Millisecond
	d.client.RetryWaitMax = 5 * time.Millisecond
	return d
}

func TestRun(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"product.txt": "PRODUCTNDC\tPROPRIETARYNAME\r\n0002-1433\tCaf\xe9 Tablets\r\n",
		"package.txt": "NDCPACKAGECODE\r\n",
	})
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := newTestDownloader(srv.URL).Run(context.Background(), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected one retry, got %d calls", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "product.txt")); !os.IsNotExist(err) {
		t.Error("expected product.txt to be renamed")
	}
	if _, err := os.Stat(filepath.Join(dir, "package.txt")); err != nil {
		t.Errorf("expected package.txt to be extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CP1252File)); err != nil {
		t.Errorf("expected %s: %v", CP1252File, err)
	}

	got, err := os.ReadFile(filepath.Join(dir, UTF8File))
	if err != nil {
		t.Fatalf("read %s: %v", UTF8File, err)
	}
	want := "PRODUCTNDC\tPROPRIETARYNAME\n0002-1433\tCafé Tablets\n"
	if string(got) != want {
		t.Errorf("utf-8 table = %q, want %q", got, want)
	}
}

func TestRun_MissingOutputDir(t *testing.T) {
	d := newTestDownloader("http://127.0.0.1:0")
	err := d.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrOutputDir) {
		t.Fatalf("expected ErrOutputDir, got %v", err)
	}
}

func TestRun_OutputPathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := newTestDownloader("http://127.0.0.1:0").Run(context.Background(), file); !errors.Is(err, ErrOutputDir) {
		t.Fatalf("expected ErrOutputDir, got %v", err)
	}
}

func TestRun_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := newTestDownloader(srv.URL).Run(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRun_MissingProductTable(t *testing.T) {
	archive := buildArchive(t, map[string]string{"package.txt": "x\n"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	err := newTestDownloader(srv.URL).Run(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "product.txt") {
		t.Fatalf("expected rename error, got %v", err)
	}
}

func TestUnzip_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, ArchiveFile)
	if err := os.WriteFile(archive, buildArchive(t, map[string]string{"../evil.txt": "x"}), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := unzip(archive, out); err == nil {
		t.Fatal("expected error for entry outside the output directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); !os.IsNotExist(err) {
		t.Error("expected escaping entry not to be written")
	}
}

func TestUnzip_CurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, ArchiveFile)
	files := map[string]string{"product.txt": "PRODUCTID\tPRODUCTNDC\n", "docs/readme.txt": "ndc"}
	if err := os.WriteFile(archive, buildArchive(t, files), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if err := unzip(archive, "."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be extracted: %v", name, err)
		}
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, target string
		want         bool
	}{
		{".", "product.txt", true},
		{".", "docs/readme.txt", true},
		{".", "..", false},
		{".", "../product.txt", false},
		{"/data/ndc", "/data/ndc/product.txt", true},
		{"/data/ndc", "/data/ndc", true},
		{"/data/ndc", "/data/ndc-old/product.txt", false},
		{"/data/ndc", "/data/product.txt", false},
		{"/data/ndc", "/data/ndc/..foo", true},
	}
	for _, tt := range tests {
		if got := within(tt.root, tt.target); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", tt.root, tt.target, got, tt.want)
		}
	}
}

func TestConvertToUTF8(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.tsv")
	dst := filepath.Join(dir, "out.tsv")
	// 0x93 and 0x94 are curly quotes, 0x80 the euro sign.
	if err := os.WriteFile(src, []byte("\x93name\x94\t\x80 5\nlast"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ConvertToUTF8(src, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if want := "“name”\t€ 5\nlast\n"; string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConvertToUTF8_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := ConvertToUTF8(filepath.Join(dir, "none"), filepath.Join(dir, "out")); err == nil {
		t.Fatal("expected error for missing source")
	}
}
