package models

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Downloader fetches model files over HTTPS into the model directory.
type Downloader struct {
	client  *http.Client
	baseURL func(model string) (string, error)
	logger  *slog.Logger
}

// NewDownloader constructs a downloader with the default HTTP client.
func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{client: &http.Client{}, baseURL: baseURL, logger: logger}
}

// Download fetches every required file for the model. Each file streams
// into a .part sibling and is renamed into place, so an interrupted
// download never leaves a partial file under its final name. Files already
// present are skipped. The progress callback receives an overall 0-100
// percentage across all files.
func (d *Downloader) Download(ctx context.Context, model string, progress func(percent int)) error {
	if progress == nil {
		progress = func(int) {}
	}

	base, err := d.baseURL(model)
	if err != nil {
		return err
	}

	dir := Dir(model)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	total := len(requiredFiles)
	for i, name := range requiredFiles {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			progress((i + 1) * 100 / total)
			continue
		}

		d.logger.Info("downloading model file", "model", model, "file", name)
		if err := d.downloadFile(ctx, base+"/"+name, dest, func(fileFraction float64) {
			overall := (float64(i) + fileFraction) / float64(total)
			progress(int(overall * 100))
		}); err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
		progress((i + 1) * 100 / total)
	}

	return nil
}

// downloadFile streams one URL into dest via a .part temp file.
func (d *Downloader) downloadFile(ctx context.Context, url, dest string, fileProgress func(float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d downloading %s", resp.StatusCode, url)
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}

	var written int64
	buf := make([]byte, 128*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				_ = os.Remove(part)
				return werr
			}
			written += int64(n)
			if resp.ContentLength > 0 {
				fileProgress(float64(written) / float64(resp.ContentLength))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = f.Close()
			_ = os.Remove(part)
			return readErr
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}
