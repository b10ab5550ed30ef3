package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-aniwall/internal/decision"
	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
	"go-aniwall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	mu    sync.Mutex
	paths []string
}

func (a *fakeApplier) Apply(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return nil
}

func (a *fakeApplier) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.paths) == 0 {
		return ""
	}
	return a.paths[len(a.paths)-1]
}

type call struct {
	id        string
	isCropped bool
}

// scriptStation answers from a per-id script and Liked once the script runs out.
type scriptStation struct {
	mu     sync.Mutex
	script map[string][]decision.Outcome
	calls  []call
	delay  time.Duration
	err    error

	active    atomic.Int32
	maxActive atomic.Int32
}

func (s *scriptStation) Decide(ctx context.Context, c models.Candidate, isCropped bool) (decision.Outcome, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{c.ID, isCropped})
	if s.err != nil {
		return decision.Outcome{}, s.err
	}
	if steps := s.script[c.ID]; len(steps) > 0 {
		s.script[c.ID] = steps[1:]
		return steps[0], nil
	}
	return liked, nil
}

func (s *scriptStation) callsFor(id string) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var shown []bool
	for _, c := range s.calls {
		if c.id == id {
			shown = append(shown, c.isCropped)
		}
	}
	return shown
}

type fakeCropper struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeCropper) Crop(ctx context.Context, c models.Candidate, w, h int) (models.Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return c, f.err
	}
	c.CropData = &models.CropData{CroppedPath: c.CroppedPath(), OffsetX: 10, OffsetY: 20}
	c.PreferredVariant = models.VariantCropped
	return c, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	statuses map[string][]string
}

func (l *fakeLedger) Record(c models.Candidate, status string, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statuses == nil {
		l.statuses = map[string][]string{}
	}
	l.statuses[c.ID] = append(l.statuses[c.ID], status)
	return nil
}

func (l *fakeLedger) get(id string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statuses[id]
}

var (
	liked    = decision.Outcome{Kind: decision.Categorized, Category: models.CategoryLiked}
	disliked = decision.Outcome{Kind: decision.Categorized, Category: models.CategoryDisliked}
	toggle   = decision.Outcome{Kind: decision.ToggleCrop}
	stop     = decision.Outcome{Kind: decision.Interrupted}
)

type harness struct {
	orch    *Orchestrator
	applier *fakeApplier
	cropper *fakeCropper
	ledger  *fakeLedger
	dir     string
}

func newHarness(t *testing.T, station decision.Station) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{applier: &fakeApplier{}, cropper: &fakeCropper{}, ledger: &fakeLedger{}, dir: dir}
	h.orch = &Orchestrator{
		Library:      library.New(dir),
		History:      history.New(),
		HistoryPath:  filepath.Join(dir, history.FileName),
		Station:      station,
		Applier:      h.applier,
		Cropper:      h.cropper,
		Ledger:       h.ledger,
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		ChannelDepth: 2,
	}
	return h
}

func (h *harness) candidates(ids ...string) []models.Candidate {
	var cands []models.Candidate
	for _, id := range ids {
		cands = append(cands, models.Candidate{
			ID:               id,
			Rating:           models.RatingSafe,
			PreferredVariant: models.VariantOriginal,
			LocalPath:        filepath.Join(h.dir, id+".png"),
			OriginalWidth:    3840,
			OriginalHeight:   2160,
		})
	}
	return cands
}

func TestRunCategorizesEveryCandidate(t *testing.T) {
	station := &scriptStation{script: map[string][]decision.Outcome{"b": {disliked}}}
	h := newHarness(t, station)

	summary, err := h.orch.Run(context.Background(), Records(h.candidates("a", "b", "c")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Categorized)
	assert.False(t, summary.Interrupted)

	b, err := h.orch.Library.Load("b")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryDisliked, b.Category)
	assert.Equal(t, models.VariantOriginal, b.PreferredVariant)
	assert.Equal(t, []string{models.StatusCategorized}, h.ledger.get("b"))

	saved := history.Load(h.orch.HistoryPath)
	assert.Equal(t, 3, saved.Len())
	cur, ok := saved.Current()
	require.True(t, ok)
	assert.Equal(t, "c", cur)
}

func TestRunCropRoundTrip(t *testing.T) {
	station := &scriptStation{script: map[string][]decision.Outcome{"a": {toggle, liked}}}
	h := newHarness(t, station)

	summary, err := h.orch.Run(context.Background(), Records(h.candidates("a")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Categorized)
	assert.Equal(t, []bool{false, true}, station.callsFor("a"))
	assert.Equal(t, 1, h.cropper.calls)

	a, err := h.orch.Library.Load("a")
	require.NoError(t, err)
	assert.Equal(t, models.VariantCropped, a.PreferredVariant)
	require.NotNil(t, a.CropData)
	assert.Equal(t, filepath.Join(h.dir, "a_cropped.png"), a.CropData.CroppedPath)
	assert.Equal(t, a.CropData.CroppedPath, h.applier.last())
	assert.Equal(t, []string{models.StatusCropped, models.StatusCategorized}, h.ledger.get("a"))
}

func TestRunToggleBackToOriginal(t *testing.T) {
	station := &scriptStation{script: map[string][]decision.Outcome{"a": {toggle, toggle, toggle, disliked}}}
	h := newHarness(t, station)

	_, err := h.orch.Run(context.Background(), Records(h.candidates("a")))
	require.NoError(t, err)

	// Back to original, then cropped again from the existing crop data.
	assert.Equal(t, []bool{false, true, false, true}, station.callsFor("a"))
	assert.Equal(t, 1, h.cropper.calls)

	a, err := h.orch.Library.Load("a")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryDisliked, a.Category)
	assert.Equal(t, models.VariantCropped, a.PreferredVariant)
}

func TestRunSinglePrompt(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	script := map[string][]decision.Outcome{}
	for i, id := range ids {
		if i%2 == 0 {
			script[id] = []decision.Outcome{toggle, liked}
		}
	}
	station := &scriptStation{script: script, delay: 2 * time.Millisecond}
	h := newHarness(t, station)
	h.cropper.delay = 20 * time.Millisecond

	summary, err := h.orch.Run(context.Background(), Records(h.candidates(ids...)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), summary.Categorized)
	assert.Equal(t, int32(1), station.maxActive.Load())

	// Each cropped candidate finishes before the next one is shown.
	for i := 0; i < len(station.calls)-1; i++ {
		if station.calls[i].id != station.calls[i+1].id {
			assert.Less(t, indexOf(ids, station.calls[i].id), indexOf(ids, station.calls[i+1].id))
		}
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestRunInterrupted(t *testing.T) {
	station := &scriptStation{script: map[string][]decision.Outcome{"new1": {stop}}}
	h := newHarness(t, station)

	for _, c := range h.candidates("older", "old") {
		c.Category = models.CategoryLiked
		require.NoError(t, h.orch.Library.Save(c))
		h.orch.History.Push(c.ID)
	}

	summary, err := h.orch.Run(context.Background(), Records(h.candidates("new1", "new2")))
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, int64(0), summary.Categorized)
	assert.Empty(t, station.callsFor("new2"))

	// The last decided wallpaper is restored and stays at the history tail.
	assert.Equal(t, filepath.Join(h.dir, "old.png"), h.applier.last())
	saved := history.Load(h.orch.HistoryPath)
	cur, ok := saved.Current()
	require.True(t, ok)
	assert.Equal(t, "old", cur)

	// A later session appends after it instead of truncating.
	next := newHarness(t, &scriptStation{})
	next.orch.Library = h.orch.Library
	next.orch.History = saved
	next.orch.HistoryPath = h.orch.HistoryPath
	_, err = next.orch.Run(context.Background(), Records(h.candidates("new2")))
	require.NoError(t, err)

	final := history.Load(h.orch.HistoryPath)
	assert.Equal(t, 3, final.Len())
	id, _ := final.Prev()
	assert.Equal(t, "old", id)
	id, _ = final.Prev()
	assert.Equal(t, "older", id)
}

func TestRunReviewKeepsCroppedVariant(t *testing.T) {
	station := &scriptStation{}
	h := newHarness(t, station)

	c := h.candidates("fav")[0]
	c.Category = models.CategoryLiked
	c.PreferredVariant = models.VariantCropped
	c.CropData = &models.CropData{CroppedPath: c.CroppedPath(), OffsetX: 4, OffsetY: 8}

	summary, err := h.orch.Run(context.Background(), Records([]models.Candidate{c}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Categorized)
	assert.Equal(t, []bool{true}, station.callsFor("fav"))
	assert.Equal(t, []string{c.CroppedPath()}, h.applier.paths)
	assert.Zero(t, h.cropper.calls)

	saved, err := h.orch.Library.Load("fav")
	require.NoError(t, err)
	assert.Equal(t, models.VariantCropped, saved.PreferredVariant)
	require.NotNil(t, saved.CropData)
	assert.Equal(t, 4, saved.CropData.OffsetX)
}

func TestRunCroppedPreferenceWithoutCropDataShowsOriginal(t *testing.T) {
	station := &scriptStation{}
	h := newHarness(t, station)

	c := h.candidates("half")[0]
	c.PreferredVariant = models.VariantCropped

	_, err := h.orch.Run(context.Background(), Records([]models.Candidate{c}))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, station.callsFor("half"))
	assert.Equal(t, []string{c.LocalPath}, h.applier.paths)
}

func TestRunCropFailureLeavesCandidateUndecided(t *testing.T) {
	station := &scriptStation{script: map[string][]decision.Outcome{"a": {toggle}}}
	h := newHarness(t, station)
	h.cropper.err = errors.New("magick exploded")

	summary, err := h.orch.Run(context.Background(), Records(h.candidates("a", "b")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(1), summary.Categorized)
	assert.Equal(t, []string{models.StatusError}, h.ledger.get("a"))
	assert.False(t, h.orch.Library.Has("a"))
	assert.Equal(t, []bool{false}, station.callsFor("b"))
}

func TestRunStationErrorIsFatal(t *testing.T) {
	boom := errors.New("terminal gone")
	station := &scriptStation{err: boom}
	h := newHarness(t, station)

	_, err := h.orch.Run(context.Background(), Records(h.candidates("a", "b")))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, station.calls, 1)
}

type blockingStation struct {
	entered chan struct{}
	once    sync.Once
}

func (s *blockingStation) Decide(ctx context.Context, c models.Candidate, isCropped bool) (decision.Outcome, error) {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return decision.Outcome{}, ctx.Err()
}

func TestRunCancellation(t *testing.T) {
	station := &blockingStation{entered: make(chan struct{})}
	h := newHarness(t, station)
	h.orch.History.Push("seen")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var summary Summary
	var err error
	go func() {
		defer close(done)
		summary, err = h.orch.Run(ctx, Records(h.candidates("a", "b", "c", "d", "e")))
	}()

	<-station.entered
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.FileExists(t, h.orch.HistoryPath)
	assert.Equal(t, 1, history.Load(h.orch.HistoryPath).Len())
}
