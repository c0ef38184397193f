// Package images keeps the site's stock photography on disk.
package images

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/newsops/internal/config"
	"github.com/TobiSchelling/newsops/internal/logger"
)

// Failure records one image that could not be fetched.
type Failure struct {
	Name string
	Err  error
}

// Result holds the results of an image fetch run.
type Result struct {
	Downloaded int
	Skipped    int
	// Undersized lists downloads that landed at or below the size threshold.
	Undersized []string
	Failures   []Failure
}

// Failed returns the number of images that could not be fetched.
func (r *Result) Failed() int { return len(r.Failures) }

// Fetcher downloads configured images into a directory.
type Fetcher struct {
	dir       string
	minBytes  int64
	userAgent string
	client    *http.Client
	log       *slog.Logger
}

// NewFetcher creates a fetcher from the images config.
func NewFetcher(cfg config.Images, log *slog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}

	return &Fetcher{
		dir:       cfg.Dir,
		minBytes:  cfg.MinBytes,
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log: logger.OrDefault(log),
	}
}

// Dir returns the destination directory.
func (f *Fetcher) Dir() string { return f.dir }

// FetchAll makes sure every file in files exists in the destination directory.
// Files already present above the size threshold are left alone. A failing
// image is logged and recorded; it never stops the batch. Only a cancelled
// context ends the run early.
func (f *Fetcher) FetchAll(ctx context.Context, files []config.ImageFile) *Result {
	result := &Result{}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		f.log.Error("cannot create image directory", "dir", f.dir, "error", err)
		for _, file := range files {
			result.Failures = append(result.Failures, Failure{Name: file.Name, Err: err})
		}
		return result
	}

	f.log.Info("checking images", "dir", f.dir, "count", len(files))

	for _, file := range files {
		if ctx.Err() != nil {
			f.log.Warn("image fetch interrupted", "remaining_from", file.Name)
			break
		}

		if f.isPresent(file.Name) {
			f.log.Debug("image present, skipping", "name", file.Name)
			result.Skipped++
			continue
		}

		n, err := f.download(ctx, file)
		if err != nil {
			f.log.Error("image download failed", "name", file.Name, "url", file.URL, "error", err)
			result.Failures = append(result.Failures, Failure{Name: file.Name, Err: err})
			continue
		}

		result.Downloaded++
		if n <= f.minBytes {
			f.log.Warn("downloaded image is suspiciously small", "name", file.Name, "bytes", n)
			result.Undersized = append(result.Undersized, file.Name)
			continue
		}
		f.log.Info("downloaded image", "name", file.Name, "bytes", n)
	}

	f.log.Info("image fetch complete",
		"downloaded", result.Downloaded, "skipped", result.Skipped, "failed", result.Failed())
	return result
}

// Missing reports which files would be downloaded by FetchAll.
func (f *Fetcher) Missing(files []config.ImageFile) []config.ImageFile {
	var out []config.ImageFile
	for _, file := range files {
		if !f.isPresent(file.Name) {
			out = append(out, file)
		}
	}
	return out
}

func (f *Fetcher) isPresent(name string) bool {
	info, err := os.Stat(filepath.Join(f.dir, name))
	return err == nil && info.Mode().IsRegular() && info.Size() > f.minBytes
}

func (f *Fetcher) download(ctx context.Context, file config.ImageFile) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &httpError{code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(f.dir, "."+file.Name+".*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("reading body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.dir, file.Name)); err != nil {
		return 0, fmt.Errorf("moving image into place: %w", err)
	}
	return n, nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
