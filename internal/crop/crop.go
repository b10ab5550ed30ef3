package crop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrGeometry is returned when the similarity search output has no usable offset.
	ErrGeometry = errors.New("could not parse crop offset from similarity search output")
	ErrTool     = errors.New("image tool failed")
)

// saliencyScale is the downscale factor of the saliency map the search runs on.
const saliencyScale = 10

// TempDirPrefix names the per-crop scratch directories, so "clean" can find leftovers.
const TempDirPrefix = "aniwall-crop-"

// Worker produces cropped variants with ImageMagick.
type Worker struct {
	Runner Runner
	// TempDir is where scratch directories are created. Empty means os.TempDir().
	TempDir string
}

func NewWorker(runner Runner) *Worker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Worker{Runner: runner}
}

// Crop writes <stem>_cropped<ext> next to the original, sized width x height, and
// returns the candidate with crop data set and Cropped preferred.
// An existing cropped artifact is reused without invoking any tool.
func (w *Worker) Crop(ctx context.Context, c models.Candidate, width, height int) (models.Candidate, error) {
	if width <= 0 || height <= 0 {
		return c, fmt.Errorf("invalid crop size %dx%d", width, height)
	}
	croppedPath := c.CroppedPath()
	logger := log.WithFields(log.Fields{"id": c.ID, "target": fmt.Sprintf("%dx%d", width, height)})

	if _, err := os.Stat(croppedPath); err == nil {
		if c.CropData == nil || c.CropData.CroppedPath != croppedPath {
			logger.Warnf("Reusing existing cropped artifact %s with unknown offsets", croppedPath)
			c.CropData = &models.CropData{CroppedPath: croppedPath}
		}
		c.PreferredVariant = models.VariantCropped
		return c, nil
	}

	scratch, err := os.MkdirTemp(w.TempDir, TempDirPrefix)
	if err != nil {
		return c, fmt.Errorf("creating crop scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.WithError(err).Warnf("Failed to remove crop scratch directory %s", scratch)
		}
	}()
	resized := filepath.Join(scratch, "resize.png")
	canny := filepath.Join(scratch, "canny.png")

	logger.Info("Cropping...")

	// Fill the target box, keeping the aspect ratio.
	if err := w.run(ctx, 0, "magick", c.LocalPath, "-resize", fmt.Sprintf("%dx%d^", width, height), resized); err != nil {
		return c, err
	}

	// Edge map, blurred and downscaled: bright where the interesting content is.
	if err := w.run(ctx, 0, "convert", resized,
		"-canny", "0x1+10%+30%",
		"-separate", "-evaluate-sequence", "max",
		"-blur", "0x20",
		"-equalize",
		"-resize", fmt.Sprintf("%d%%x%d%%", 100/saliencyScale, 100/saliencyScale),
		canny); err != nil {
		return c, err
	}

	// compare exits 1 when the images merely differ.
	out, err := w.output(ctx, 1, "magick", "compare",
		"-metric", "rmse",
		"-subimage-search",
		"-dissimilarity-threshold", "1",
		canny,
		"(", "-size", fmt.Sprintf("%dx%d", width/saliencyScale, height/saliencyScale), "xc:white", ")",
		"null:")
	if err != nil {
		return c, err
	}
	x, y, err := ParseOffset(string(out.Stderr))
	if err != nil {
		return c, err
	}
	x, y = x*saliencyScale, y*saliencyScale

	if err := w.run(ctx, 0, "convert", resized,
		"-crop", fmt.Sprintf("%dx%d+%d+%d", width, height, x, y),
		"+repage",
		croppedPath); err != nil {
		return c, err
	}

	c.CropData = &models.CropData{CroppedPath: croppedPath, OffsetX: x, OffsetY: y}
	c.PreferredVariant = models.VariantCropped
	logger.WithFields(log.Fields{"offsetX": x, "offsetY": y}).Infof("Cropped to %s", croppedPath)
	return c, nil
}

func (w *Worker) run(ctx context.Context, maxExit int, name string, args ...string) error {
	_, err := w.output(ctx, maxExit, name, args...)
	return err
}

// output runs a tool and fails when its exit code is above maxExit.
func (w *Worker) output(ctx context.Context, maxExit int, name string, args ...string) (Output, error) {
	out, err := w.Runner.Run(ctx, name, args...)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %v (make sure ImageMagick is installed)", ErrTool, name, err)
	}
	if out.ExitCode > maxExit {
		return out, fmt.Errorf("%w: %s exited with status %d: %s", ErrTool, name, out.ExitCode, strings.TrimSpace(string(out.Stderr)))
	}
	return out, nil
}

// ParseOffset extracts "x,y" following the '@' in compare's subimage-search output,
// e.g. "1234.5 (0.0188) @ 12,34".
func ParseOffset(s string) (int, int, error) {
	_, coords, found := strings.Cut(s, "@")
	if !found {
		return 0, 0, fmt.Errorf("%w: no '@' in %q", ErrGeometry, strings.TrimSpace(s))
	}
	fields := strings.Fields(coords)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("%w: empty offset in %q", ErrGeometry, strings.TrimSpace(s))
	}
	xs, ys, found := strings.Cut(fields[0], ",")
	if !found {
		return 0, 0, fmt.Errorf("%w: expected x,y in %q", ErrGeometry, fields[0])
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("%w: non-numeric offset %q", ErrGeometry, fields[0])
	}
	return x, y, nil
}
