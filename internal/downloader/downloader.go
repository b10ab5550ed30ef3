package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-aniwall/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHashMismatch = errors.New("downloaded file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error")
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
)

const userAgent = "aniwall/1.0"

// Downloader fetches images into the wallpapers directory with hash checks.
type Downloader struct {
	client *http.Client
}

func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Downloader{client: client}
}

// DownloadFile downloads url to targetFilepath through a temporary file in the same
// directory. When expectedMD5 is set, an existing file with that hash is kept as is and
// a fresh download must match it before it replaces the target.
func (d *Downloader) DownloadFile(ctx context.Context, targetFilepath string, url string, expectedMD5 string) (string, error) {
	logger := log.WithField("target", filepath.Base(targetFilepath))

	if expectedMD5 != "" && helpers.CheckMD5(targetFilepath, expectedMD5) {
		logger.Debug("Valid file already present, skipping download")
		return targetFilepath, nil
	}

	targetDir := filepath.Dir(targetFilepath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(targetFilepath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, targetFilepath, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			tempFile.Close()
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				logger.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: performing request for %s: %w", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	counter := &helpers.CounterWriter{Writer: tempFile}

	logger.Infof("Downloading %s (%s)...", url, helpers.BytesToSize(size))
	if _, err := io.Copy(counter, resp.Body); err != nil {
		return "", fmt.Errorf("%w: writing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temp file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	if expectedMD5 != "" {
		if !helpers.CheckMD5(tempFile.Name(), expectedMD5) {
			return "", fmt.Errorf("%w: %s", ErrHashMismatch, url)
		}
		logger.Debug("MD5 verified")
	}

	if err := os.Rename(tempFile.Name(), targetFilepath); err != nil {
		return "", fmt.Errorf("%w: renaming %s to %s: %w", ErrFileSystem, tempFile.Name(), targetFilepath, err)
	}
	shouldCleanupTemp = false
	logger.Infof("Downloaded %s", helpers.BytesToSize(counter.Total))
	return targetFilepath, nil
}
