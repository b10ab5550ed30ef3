package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-aniwall/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// KeyPrefix marks candidate ledger entries.
const KeyPrefix = "c_"

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// DB wraps the bitcask database instance.
type DB struct {
	db *bitcask.Bitcask
	mu sync.RWMutex
}

// Open initializes and returns a DB instance, creating parent directories.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Debugf("Database opened at %s", path)
	return &DB{db: dbInstance}, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

func (d *DB) Has(key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Has(key)
}

// Get retrieves and decompresses the value for key.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	value, err := d.db.Get(key)
	d.mu.RUnlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}
	return decompressIfGzipped(value)
}

// Put compresses and stores a value.
func (d *DB) Put(key []byte, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}
	d.mu.Lock()
	err = d.db.Put(key, compressed)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("error putting key %s: %w", string(key), err)
	}
	return nil
}

func (d *DB) Delete(key []byte) error {
	d.mu.Lock()
	err := d.db.Delete(key)
	d.mu.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold calls fn for every key with its decompressed value.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error decompressing value for key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

// --- Candidate Ledger ---

func ledgerKey(id string) []byte {
	return []byte(KeyPrefix + id)
}

// GetEntry returns the ledger entry for a candidate id.
func (d *DB) GetEntry(id string) (models.LedgerEntry, error) {
	raw, err := d.Get(ledgerKey(id))
	if err != nil {
		return models.LedgerEntry{}, err
	}
	var entry models.LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("failed to unmarshal ledger entry %s: %w", id, err)
	}
	return entry, nil
}

// DeleteEntry drops the ledger entry for a candidate id.
func (d *DB) DeleteEntry(id string) error {
	return d.Delete(ledgerKey(id))
}

// PutEntry stores entry, stamping UpdatedAt.
func (d *DB) PutEntry(entry models.LedgerEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry %s: %w", entry.ID, err)
	}
	return d.Put(ledgerKey(entry.ID), data)
}

// Record upserts the ledger entry for a candidate with the given status.
// errDetails is cleared when empty.
func (d *DB) Record(c models.Candidate, status string, errDetails string) error {
	return d.PutEntry(models.LedgerEntry{
		ID:               c.ID,
		Status:           status,
		Category:         c.Category,
		PreferredVariant: c.PreferredVariant,
		LocalPath:        c.LocalPath,
		ErrorDetails:     errDetails,
	})
}

// Entries folds over every ledger entry. Malformed entries are logged and skipped.
func (d *DB) Entries(fn func(entry models.LedgerEntry) error) error {
	return d.Fold(func(key []byte, value []byte) error {
		keyStr := string(key)
		if !strings.HasPrefix(keyStr, KeyPrefix) {
			return nil
		}
		var entry models.LedgerEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal ledger entry %s, skipping", keyStr)
			return nil
		}
		return fn(entry)
	})
}

// --- Compression Helpers ---

// decompressIfGzipped returns value decompressed when it carries a gzip header.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
		return value, nil
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data.")
		return value, nil
	}
	return decompressed, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	// Close flushes the gzip footer.
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
