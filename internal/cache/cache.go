package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-aniwall/internal/api"
	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

const (
	DefaultMaxAgeDays = 5
	entryExt          = ".json"
)

// Fingerprint is the BLAKE3 digest of the canonical filter tuple, hex encoded.
func Fingerprint(filters models.Filters) string {
	sum := blake3.Sum256([]byte(filters.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Cache keeps one file per filter fingerprint holding the last fetched candidate list.
// The file's modification time is the fetch time.
type Cache struct {
	Dir        string
	Fetcher    api.Fetcher
	MaxAgeDays int
	Now        func() time.Time
}

// Entry describes one cached result set.
type Entry struct {
	Fingerprint string
	FetchedAt   time.Time
	Posts       int
}

func New(dir string, fetcher api.Fetcher, maxAgeDays int) *Cache {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	return &Cache{Dir: dir, Fetcher: fetcher, MaxAgeDays: maxAgeDays, Now: time.Now}
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.Dir, fingerprint+entryExt)
}

// GetOrFetch returns the cached list when fresh, otherwise refetches and overwrites the entry.
// When the refetch fails and a stale list exists, the stale list is returned.
func (c *Cache) GetOrFetch(ctx context.Context, filters models.Filters) ([]models.Post, error) {
	fp := Fingerprint(filters)
	logger := log.WithFields(log.Fields{"fingerprint": fp[:12], "filters": filters.Canonical()})

	cached, fetchedAt, readErr := c.read(fp)
	if readErr == nil && len(cached) > 0 && c.fresh(fetchedAt) {
		logger.Infof("Using cached catalog listing (%d posts, fetched %s)", len(cached), fetchedAt.Format(time.RFC3339))
		return cached, nil
	}
	if readErr != nil && !errors.Is(readErr, os.ErrNotExist) {
		logger.WithError(readErr).Warn("Ignoring unreadable cache entry")
		cached = nil
	}

	posts, err := c.Fetcher.Fetch(ctx, filters)
	if err != nil {
		if len(cached) > 0 {
			logger.WithError(err).Warnf("Catalog fetch failed, falling back to stale listing from %s", fetchedAt.Format(time.RFC3339))
			return cached, nil
		}
		return nil, fmt.Errorf("fetching catalog listing: %w", err)
	}

	if err := c.write(fp, posts); err != nil {
		logger.WithError(err).Warn("Failed to write cache entry")
	}
	return posts, nil
}

// fresh reports whether an entry fetched at t is at most MaxAgeDays whole days old.
func (c *Cache) fresh(t time.Time) bool {
	ageDays := int(c.Now().Sub(t) / (24 * time.Hour))
	return ageDays <= c.MaxAgeDays
}

func (c *Cache) read(fp string) ([]models.Post, time.Time, error) {
	p := c.path(fp)
	info, err := os.Stat(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding cache entry %s: %w", p, err)
	}
	return posts, info.ModTime(), nil
}

func (c *Cache) write(fp string, posts []models.Post) error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", c.Dir, err)
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, fp+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(fp))
}

// Entries lists every cache entry, newest first.
func (c *Cache) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory %s: %w", c.Dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		fp := strings.TrimSuffix(name, entryExt)
		posts, fetchedAt, err := c.read(fp)
		if err != nil {
			log.WithError(err).Debugf("Skipping unreadable cache entry %s", name)
			continue
		}
		entries = append(entries, Entry{Fingerprint: fp, FetchedAt: fetchedAt, Posts: len(posts)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FetchedAt.After(entries[j].FetchedAt)
	})
	return entries, nil
}

// Clear removes every cache entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	dirEntries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory %s: %w", c.Dir, err)
	}
	removed := 0
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		if err := os.Remove(filepath.Join(c.Dir, de.Name())); err != nil {
			return removed, fmt.Errorf("removing cache entry %s: %w", de.Name(), err)
		}
		removed++
	}
	return removed, nil
}
