// Package ndc fetches the FDA National Drug Code directory and converts its
// product table to UTF-8 so that Part D drug codes can be given display names.
package ndc

import (
	"archive/zip"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
)

// DefaultSourceURL is where the FDA publishes the NDC directory.
const DefaultSourceURL = "https://www.accessdata.fda.gov/cder/ndctext.zip"

// File names written to the output directory.
const (
	ArchiveFile = "ndctext.zip"
	CP1252File  = "fda_products_cp1252.tsv"
	UTF8File    = "fda_products_utf8.tsv"

	productFile = "product.txt"
)

// ErrOutputDir is returned when the output directory does not exist.
var ErrOutputDir = errors.New("output directory does not exist")

type Downloader struct {
	client    *retryablehttp.Client
	sourceURL string
	logger    zerolog.Logger
}

// NewDownloader returns a Downloader that fetches sourceURL, retrying
// transient failures up to three times.
func NewDownloader(sourceURL string, logger zerolog.Logger) *Downloader {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 90 * time.Second
	rc.Logger = retryLogger{logger: logger}
	return &Downloader{client: rc, sourceURL: sourceURL, logger: logger}
}

// Run downloads the archive into outputDir, extracts it, renames the product
// table to CP1252File and writes its UTF-8 conversion to UTF8File.
func (d *Downloader) Run(ctx context.Context, outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputDir, outputDir)
	}

	archive := filepath.Join(outputDir, ArchiveFile)
	if err := d.download(ctx, archive); err != nil {
		return err
	}
	d.logger.Info().Str("file", archive).Msg("downloaded NDC directory")

	if err := unzip(archive, outputDir); err != nil {
		return fmt.Errorf("extract %s: %w", ArchiveFile, err)
	}

	cp1252 := filepath.Join(outputDir, CP1252File)
	if err := os.Rename(filepath.Join(outputDir, productFile), cp1252); err != nil {
		return fmt.Errorf("rename %s: %w", productFile, err)
	}

	utf8 := filepath.Join(outputDir, UTF8File)
	if err := ConvertToUTF8(cp1252, utf8); err != nil {
		return err
	}
	d.logger.Info().Str("file", utf8).Msg("converted NDC product table to UTF-8")
	return nil
}

func (d *Downloader) download(ctx context.Context, dst string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, d.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", d.sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", d.sourceURL, resp.Status)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return f.Close()
}

func unzip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(dir)
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if !within(root, target) {
			return fmt.Errorf("entry %q escapes the output directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("entry %q: %w", f.Name, err)
		}
	}
	return nil
}

// within reports whether target names root itself or a path below it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// ConvertToUTF8 decodes the windows-1252 file src line by line into the UTF-8
// file dst. Line endings are normalised to "\n".
func ConvertToUTF8(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	scanner := bufio.NewScanner(charmap.Windows1252.NewDecoder().Reader(in))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	w := bufio.NewWriter(out)
	for scanner.Scan() {
		w.WriteString(scanner.Text())
		w.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return fmt.Errorf("decode %s: %w", src, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// retryLogger routes retryablehttp's leveled logging through zerolog.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.logger.Error().Fields(kv).Msg(msg) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.logger.Info().Fields(kv).Msg(msg) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.logger.Debug().Fields(kv).Msg(msg) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.logger.Warn().Fields(kv).Msg(msg) }
