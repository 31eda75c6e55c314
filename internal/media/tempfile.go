// Package media handles complaint images: scoped temporary copies, HTTP
// download from the image store, and preprocessing for the classifier.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/pkg/logger"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 20 << 20
)

// TempFile is a uniquely named image copy owned by its creator. Release is
// idempotent and must be deferred right after acquisition.
type TempFile struct {
	path string
	once sync.Once
	err  error
}

func (f *TempFile) Path() string {
	return f.path
}

func (f *TempFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
			logger.Warn("Failed to remove temp image", zap.String("path", f.path), zap.Error(err))
		}
	})
	return f.err
}

// WriteTemp copies r into a new temp file under dir (os.TempDir when empty).
// Seekable readers are rewound first.
func WriteTemp(dir string, r io.Reader, maxBytes int64) (*TempFile, error) {
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind image stream: %w", err)
		}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	file, err := os.CreateTemp(dir, "urbanfix-"+uuid.NewString()[:8]+"-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	tmp := &TempFile{path: file.Name()}

	n, err := io.Copy(file, io.LimitReader(r, maxBytes+1))
	closeErr := file.Close()
	switch {
	case err != nil:
		_ = tmp.Release()
		return nil, fmt.Errorf("failed to write temp image: %w", err)
	case closeErr != nil:
		_ = tmp.Release()
		return nil, fmt.Errorf("failed to close temp image: %w", closeErr)
	case n > maxBytes:
		_ = tmp.Release()
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	case n == 0:
		_ = tmp.Release()
		return nil, errors.New("image is empty")
	}

	return tmp, nil
}

// WithTemp writes r to a temp file, runs fn with its path and releases the
// file on every exit path, including a panic in fn.
func WithTemp(dir string, r io.Reader, fn func(path string) error) error {
	tmp, err := WriteTemp(dir, r, 0)
	if err != nil {
		return err
	}
	defer tmp.Release()
	return fn(tmp.Path())
}

type Downloader struct {
	httpClient *http.Client
	dir        string
	maxBytes   int64
}

func NewDownloader(timeout time.Duration, dir string) *Downloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		dir:        dir,
		maxBytes:   DefaultMaxBytes,
	}
}

// Download fetches imageURL into a temp file the caller must Release.
func (d *Downloader) Download(ctx context.Context, imageURL string) (*TempFile, error) {
	if imageURL == "" {
		return nil, errors.New("image url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	return WriteTemp(d.dir, resp.Body, d.maxBytes)
}
