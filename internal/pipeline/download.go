package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go-aniwall/internal/helpers"
	"go-aniwall/internal/library"
	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrAlreadyDecided is returned by Prepare for posts whose record has a category.
var ErrAlreadyDecided = errors.New("candidate already categorized")

// Downloader stores a remote artifact locally. Implemented by downloader.Downloader.
type Downloader interface {
	DownloadFile(ctx context.Context, targetFilepath string, url string, expectedMD5 string) (string, error)
}

// DownloadStage turns catalog posts into undecided candidates with a local artifact.
type DownloadStage struct {
	Library    *library.Library
	Downloader Downloader
	Ledger     Ledger // optional
	Dir        string
}

// Prepare makes sure the artifact of p exists locally and that an undecided record for it
// is saved. Posts whose record already has a category yield ErrAlreadyDecided.
func (d *DownloadStage) Prepare(ctx context.Context, p models.Post) (models.Candidate, error) {
	id := p.Md5
	if id == "" {
		return models.Candidate{}, fmt.Errorf("post %s has no md5", p.FileUrl)
	}

	if d.Library.Has(id) {
		existing, err := d.Library.Load(id)
		if err != nil {
			return models.Candidate{}, err
		}
		if existing.IsDecided() {
			return existing, ErrAlreadyDecided
		}
		if _, err := os.Stat(existing.LocalPath); err == nil {
			return existing, nil
		}
	}

	target := filepath.Join(d.Dir, id+helpers.ExtFromUrl(p.FileUrl, ".png"))
	c := models.NewCandidate(p, target)

	path, err := d.Downloader.DownloadFile(ctx, target, p.FileUrl, p.Md5)
	if err != nil {
		if ctx.Err() == nil {
			d.record(c, models.StatusError, err.Error())
		}
		return c, fmt.Errorf("downloading %s: %w", id, err)
	}
	c.LocalPath = path

	if w, h, _, err := helpers.ImageDimensions(path); err != nil {
		log.WithError(err).WithField("id", id).Warn("Could not probe image size, keeping catalog dimensions")
	} else {
		c.OriginalWidth, c.OriginalHeight = w, h
	}

	if err := d.Library.Save(c); err != nil {
		d.record(c, models.StatusError, err.Error())
		return c, fmt.Errorf("saving record %s: %w", id, err)
	}
	d.record(c, models.StatusPending, "")
	return c, nil
}

// Source downloads posts in order and emits each undecided candidate. Failed posts are
// logged and skipped.
func (d *DownloadStage) Source(posts []models.Post) Source {
	return func(ctx context.Context, out chan<- models.Candidate) error {
		for _, p := range posts {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c, err := d.Prepare(ctx, p)
			if errors.Is(err, ErrAlreadyDecided) {
				log.WithField("id", c.ID).Debug("Already categorized, skipping")
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithError(err).WithField("url", p.FileUrl).Error("Skipping post")
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- c:
			}
		}
		return nil
	}
}

func (d *DownloadStage) record(c models.Candidate, status, details string) {
	if d.Ledger == nil {
		return
	}
	if err := d.Ledger.Record(c, status, details); err != nil {
		log.WithError(err).WithField("id", c.ID).Warnf("Failed to update ledger to %s", status)
	}
}
