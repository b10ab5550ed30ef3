package helpers

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/url"
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

// FileMD5 returns the lowercase hex MD5 of a file's content.
func FileMD5(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckMD5 verifies a file against the catalog's MD5, case-insensitively.
// A missing file or empty expectation never matches.
func CheckMD5(filepath string, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return false
	}
	got, err := FileMD5(filepath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("Error hashing file %s", filepath)
		}
		return false
	}
	if got != expected {
		log.WithFields(log.Fields{"expected": expected, "got": got}).Debugf("MD5 mismatch for %s", filepath)
		return false
	}
	return true
}

// ImageDimensions decodes only the image header (PNG, JPEG, GIF, WebP).
func ImageDimensions(filepath string) (int, int, string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, "", fmt.Errorf("decoding image header of %s: %w", filepath, err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// ExtFromUrl returns the lowercase file extension of a URL path, or fallback.
func ExtFromUrl(rawUrl string, fallback string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return fallback
	}
	return ext
}

// CounterWriter tracks the number of bytes written to the underlying writer.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0700); err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
