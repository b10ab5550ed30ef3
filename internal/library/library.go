package library

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("candidate record not found")
	// ErrInvalidID is returned for ids that are not a plain file name or not an MD5 digest.
	ErrInvalidID = errors.New("invalid candidate id")
)

const recordExt = ".json"

// Library is the wallpapers directory: one JSON record per candidate next to its images.
type Library struct {
	Dir string
}

func New(dir string) *Library {
	return &Library{Dir: dir}
}

func (l *Library) RecordPath(id string) string {
	return filepath.Join(l.Dir, id+recordExt)
}

// checkID rejects ids that would resolve outside the wallpapers directory.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ParseDigest normalizes a user supplied id, which must be 32 hex digits.
func ParseDigest(s string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if len(id) != hex.EncodedLen(16) {
		return "", fmt.Errorf("%w: %q is not an MD5 digest", ErrInvalidID, s)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", fmt.Errorf("%w: %q is not an MD5 digest", ErrInvalidID, s)
	}
	return id, nil
}

// Has reports whether a record exists for id.
func (l *Library) Has(id string) bool {
	if checkID(id) != nil {
		return false
	}
	_, err := os.Stat(l.RecordPath(id))
	return err == nil
}

// Load reads the record for id. A malformed record is an error, never an empty candidate.
func (l *Library) Load(id string) (models.Candidate, error) {
	if err := checkID(id); err != nil {
		return models.Candidate{}, err
	}
	p := l.RecordPath(id)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.Candidate{}, fmt.Errorf("reading record %s: %w", p, err)
	}
	var c models.Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Candidate{}, fmt.Errorf("decoding record %s: %w", p, err)
	}
	if c.PreferredVariant == models.VariantCropped && c.CropData == nil {
		return models.Candidate{}, fmt.Errorf("decoding record %s: cropped variant preferred without crop data", p)
	}
	return c, nil
}

// Save writes the record atomically.
func (l *Library) Save(c models.Candidate) error {
	if err := checkID(c.ID); err != nil {
		return fmt.Errorf("cannot save record: %w", err)
	}
	if err := os.MkdirAll(l.Dir, 0700); err != nil {
		return fmt.Errorf("creating wallpapers directory %s: %w", l.Dir, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", c.ID, err)
	}

	tmp, err := os.CreateTemp(l.Dir, c.ID+recordExt+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing record %s: %w", c.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing record %s: %w", c.ID, err)
	}
	if err := os.Rename(tmp.Name(), l.RecordPath(c.ID)); err != nil {
		return fmt.Errorf("replacing record %s: %w", c.ID, err)
	}
	return nil
}

// IDs lists every record id in the library, sorted.
func (l *Library) IDs() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading wallpapers directory %s: %w", l.Dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// All loads every readable record. Malformed records are logged and skipped.
func (l *Library) All() ([]models.Candidate, error) {
	ids, err := l.IDs()
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Candidate, 0, len(ids))
	for _, id := range ids {
		c, err := l.Load(id)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable record %s", id)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// ByCategory returns every record with the given category.
func (l *Library) ByCategory(cat models.Category) ([]models.Candidate, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var matched []models.Candidate
	for _, c := range all {
		if c.Category == cat {
			matched = append(matched, c)
		}
	}
	return matched, nil
}
