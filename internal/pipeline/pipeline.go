package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go-aniwall/internal/decision"
	"go-aniwall/internal/display"
	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
)

const DefaultChannelDepth = 10

// Cropper produces the cropped variant of a candidate.
type Cropper interface {
	Crop(ctx context.Context, c models.Candidate, width, height int) (models.Candidate, error)
}

// Ledger records per-candidate status. Implemented by database.DB.
type Ledger interface {
	Record(c models.Candidate, status string, errDetails string) error
}

// Indexer makes categorized candidates searchable. Implemented by index.Indexer.
type Indexer interface {
	Index(c models.Candidate) error
}

// Source feeds candidates into a run. It must stop sending once ctx is done.
type Source func(ctx context.Context, out chan<- models.Candidate) error

// Summary reports how a run ended.
type Summary struct {
	Categorized int64
	Failed      int64
	Interrupted bool
}

// Orchestrator runs the curation pipeline: candidates arrive from a Source, are shown
// and decided one at a time, optionally detour through the cropper, and are persisted.
type Orchestrator struct {
	Library     *library.Library
	History     *history.Navigator
	HistoryPath string // empty disables checkpoints
	Station     decision.Station
	Applier     display.Applier
	Cropper     Cropper
	Ledger      Ledger  // optional
	Indexer     Indexer // optional

	ScreenWidth  int
	ScreenHeight int
	ChannelDepth int
}

// run holds the state of a single Run call.
type run struct {
	o      *Orchestrator
	cancel context.CancelFunc

	// lock admits one candidate round at a time. The holder may pass it along the
	// crop path; whoever resolves the round releases it.
	lock chan struct{}

	categorized atomic.Int64
	failed      atomic.Int64
	interrupted atomic.Bool

	errOnce sync.Once
	err     error
}

type roundResult int

const (
	roundDone roundResult = iota
	roundNeedsCrop
	roundInterrupted
)

// Run curates everything src produces until it is exhausted, the operator interrupts,
// a fatal error occurs or ctx is cancelled. History is saved before returning.
func (o *Orchestrator) Run(ctx context.Context, src Source) (Summary, error) {
	depth := o.ChannelDepth
	if depth <= 0 {
		depth = DefaultChannelDepth
	}
	if o.History == nil {
		o.History = history.New()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{o: o, cancel: cancel, lock: make(chan struct{}, 1)}

	directCh := make(chan models.Candidate, depth)
	cropCh := make(chan models.Candidate, depth)
	rejoinCh := make(chan models.Candidate, depth)

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		defer close(directCh)
		if err := src(runCtx, directCh); err != nil && runCtx.Err() == nil {
			r.fail(fmt.Errorf("candidate source: %w", err))
		}
	}()

	go func() {
		defer wg.Done()
		defer close(cropCh)
		r.directStage(runCtx, directCh, cropCh)
	}()

	go func() {
		defer wg.Done()
		defer close(rejoinCh)
		r.cropStage(runCtx, cropCh, rejoinCh)
	}()

	go func() {
		defer wg.Done()
		r.rejoinStage(runCtx, rejoinCh)
	}()

	wg.Wait()

	summary := Summary{
		Categorized: r.categorized.Load(),
		Failed:      r.failed.Load(),
		Interrupted: r.interrupted.Load() || (ctx.Err() != nil && r.err == nil),
	}

	err := r.err
	if saveErr := o.checkpoint(); saveErr != nil && err == nil {
		err = saveErr
	}
	return summary, err
}

// fail records the first fatal error and stops the run.
func (r *run) fail(err error) {
	r.errOnce.Do(func() {
		log.WithError(err).Error("Pipeline stopped")
		r.err = err
	})
	r.cancel()
}

func (r *run) acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case r.lock <- struct{}{}:
		return true
	}
}

func (r *run) release() {
	select {
	case <-r.lock:
	default:
		log.Warn("Prompt lock released while not held")
	}
}

func (r *run) directStage(ctx context.Context, in <-chan models.Candidate, cropCh chan<- models.Candidate) {
	for {
		if ctx.Err() != nil {
			return
		}
		var c models.Candidate
		var ok bool
		select {
		case <-ctx.Done():
			return
		case c, ok = <-in:
			if !ok {
				return
			}
		}

		if !r.acquire(ctx) {
			return
		}
		isCropped := c.PreferredVariant == models.VariantCropped && c.CropData != nil
		res, err := r.round(ctx, &c, isCropped)
		if err != nil {
			r.release()
			r.fail(err)
			return
		}
		if res != roundNeedsCrop {
			r.release()
			continue
		}

		// The lock travels with the candidate; the rejoin stage releases it.
		select {
		case <-ctx.Done():
			r.release()
			return
		case cropCh <- c:
			log.WithField("id", c.ID).Debug("Sent to crop path")
		}
	}
}

func (r *run) cropStage(ctx context.Context, in <-chan models.Candidate, out chan<- models.Candidate) {
	for {
		if ctx.Err() != nil {
			return
		}
		var c models.Candidate
		var ok bool
		select {
		case <-ctx.Done():
			return
		case c, ok = <-in:
			if !ok {
				return
			}
		}

		cropped, err := r.crop(ctx, c)
		if err != nil {
			r.release()
			continue
		}

		select {
		case <-ctx.Done():
			r.release()
			return
		case out <- cropped:
		}
	}
}

func (r *run) rejoinStage(ctx context.Context, in <-chan models.Candidate) {
	for {
		if ctx.Err() != nil {
			return
		}
		var c models.Candidate
		var ok bool
		select {
		case <-ctx.Done():
			return
		case c, ok = <-in:
			if !ok {
				return
			}
		}

		err := r.settle(ctx, c)
		r.release()
		if err != nil {
			r.fail(err)
			return
		}
	}
}

// settle finishes a round that resumes with the cropped variant on screen. Any further
// crop request is served inline since this stage already owns the lock.
func (r *run) settle(ctx context.Context, c models.Candidate) error {
	for {
		res, err := r.round(ctx, &c, true)
		if err != nil || res != roundNeedsCrop {
			return err
		}
		cropped, err := r.crop(ctx, c)
		if err != nil {
			return nil
		}
		c = cropped
	}
}

// round shows c and prompts until the operator categorizes, interrupts, or asks for a
// crop that does not exist yet. Stage-local failures resolve the round as done.
func (r *run) round(ctx context.Context, c *models.Candidate, isCropped bool) (roundResult, error) {
	o := r.o
	logger := log.WithField("id", c.ID)

	for {
		if ctx.Err() != nil {
			return roundInterrupted, nil
		}
		if isCropped && c.CropData == nil {
			return roundNeedsCrop, nil
		}

		path := c.LocalPath
		if isCropped {
			path = c.CropData.CroppedPath
		}
		if err := o.Applier.Apply(path); err != nil {
			r.markFailed(*c, fmt.Errorf("applying %s: %w", path, err))
			return roundDone, nil
		}

		out, err := o.Station.Decide(ctx, *c, isCropped)
		if err != nil {
			if ctx.Err() != nil {
				return roundInterrupted, nil
			}
			return roundDone, fmt.Errorf("decision for %s: %w", c.ID, err)
		}
		logger.Debugf("Outcome %s (cropped shown: %t)", out.Kind, isCropped)

		switch out.Kind {
		case decision.Interrupted:
			r.interrupt()
			return roundInterrupted, nil

		case decision.ToggleCrop:
			if isCropped {
				isCropped = false
				continue
			}
			if c.CropData == nil {
				return roundNeedsCrop, nil
			}
			isCropped = true

		case decision.Categorized:
			c.Category = out.Category
			c.PreferredVariant = models.VariantOriginal
			if isCropped {
				c.PreferredVariant = models.VariantCropped
			}
			r.persist(*c)
			return roundDone, nil

		default:
			return roundDone, fmt.Errorf("decision for %s: unknown outcome %s", c.ID, out.Kind)
		}
	}
}

func (r *run) crop(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	o := r.o
	cropped, err := o.Cropper.Crop(ctx, c, o.ScreenWidth, o.ScreenHeight)
	if err != nil {
		if ctx.Err() == nil {
			r.markFailed(c, fmt.Errorf("cropping: %w", err))
		}
		return c, err
	}
	if err := o.Library.Save(cropped); err != nil {
		log.WithError(err).WithField("id", c.ID).Warn("Failed to save crop data")
	}
	r.record(cropped, models.StatusCropped, "")
	return cropped, nil
}

func (r *run) persist(c models.Candidate) {
	o := r.o
	logger := log.WithFields(log.Fields{"id": c.ID, "category": c.Category, "variant": c.PreferredVariant})

	if err := o.Library.Save(c); err != nil {
		r.markFailed(c, fmt.Errorf("saving record: %w", err))
		return
	}
	r.record(c, models.StatusCategorized, "")
	if o.Indexer != nil {
		if err := o.Indexer.Index(c); err != nil {
			logger.WithError(err).Warn("Failed to index candidate")
		}
	}

	o.History.Push(c.ID)
	if err := o.checkpoint(); err != nil {
		logger.WithError(err).Warn("History checkpoint failed")
	}
	r.categorized.Add(1)
	logger.Info("Categorized")
}

// interrupt restores the last decided wallpaper and stops the run. The candidate on
// screen was never pushed, so the history cursor already points at it.
func (r *run) interrupt() {
	o := r.o
	r.interrupted.Store(true)
	defer r.cancel()

	id, ok := o.History.Current()
	if !ok {
		return
	}
	prev, err := o.Library.Load(id)
	if err != nil {
		log.WithError(err).WithField("id", id).Warn("Could not restore previous wallpaper")
		return
	}
	if err := o.Applier.Apply(prev.DisplayPath()); err != nil {
		log.WithError(err).WithField("id", id).Warn("Could not restore previous wallpaper")
	}
}

func (r *run) markFailed(c models.Candidate, err error) {
	r.failed.Add(1)
	log.WithError(err).WithField("id", c.ID).Error("Candidate failed, leaving it undecided")
	r.record(c, models.StatusError, err.Error())
}

func (r *run) record(c models.Candidate, status, details string) {
	if r.o.Ledger == nil {
		return
	}
	if err := r.o.Ledger.Record(c, status, details); err != nil {
		log.WithError(err).WithField("id", c.ID).Warnf("Failed to update ledger to %s", status)
	}
}

func (o *Orchestrator) checkpoint() error {
	if o.HistoryPath == "" {
		return nil
	}
	if err := history.Save(o.HistoryPath, o.History); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// Records is a Source over already stored candidates.
func Records(cands []models.Candidate) Source {
	return func(ctx context.Context, out chan<- models.Candidate) error {
		for _, c := range cands {
			if ctx.Err() != nil {
				return ctx.Err()
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
