package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"go-aniwall/index"
	"go-aniwall/internal/crop"
	"go-aniwall/internal/database"
	"go-aniwall/internal/decision"
	"go-aniwall/internal/display"
	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
	"go-aniwall/internal/pipeline"
)

var errUnknownScreenSize = errors.New("unknown screen size: set --screen-width/--screen-height, ScreenWidth/ScreenHeight in config, or working probe commands")

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newHttpClient() *http.Client {
	return &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
	}
}

// newDownloadClient shares the transport but allows slow image transfers.
func newDownloadClient() *http.Client {
	return &http.Client{Transport: globalHttpTransport, Timeout: 15 * time.Minute}
}

// screenSize uses configured dimensions when both are set and probes the rest.
func screenSize(ctx context.Context) (int, int, error) {
	w, h := globalConfig.ScreenWidth, globalConfig.ScreenHeight
	if w > 0 && h > 0 {
		return w, h, nil
	}
	probedW, probedH, err := display.NewShellProber(globalConfig.ScreenWidthCommand, globalConfig.ScreenHeightCommand).Probe(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", errUnknownScreenSize, err)
	}
	if w <= 0 {
		w = probedW
	}
	if h <= 0 {
		h = probedH
	}
	log.Debugf("Screen size: %dx%d", w, h)
	return w, h, nil
}

func openLibrary() *library.Library {
	return library.New(globalConfig.WallpapersDir)
}

func historyPath() string {
	return filepath.Join(globalConfig.WallpapersDir, history.FileName)
}

func newApplier() *display.CommandApplier {
	return display.NewCommandApplier(globalConfig.SetWallpaperCommand)
}

// session bundles the stores a curation run writes to.
type session struct {
	lib     *library.Library
	hist    *history.Navigator
	db      *database.DB
	indexer *index.Indexer
}

// openSession opens the ledger and search index. Failing to open the index only
// disables indexing.
func openSession() (*session, error) {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	s := &session{lib: openLibrary(), hist: history.Load(historyPath()), db: db}

	bleveIndex, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warn("Search index unavailable, curated wallpapers will not be indexed")
	} else {
		s.indexer = index.NewIndexer(bleveIndex)
	}
	return s, nil
}

func (s *session) Close() {
	if s.indexer != nil {
		if err := s.indexer.Close(); err != nil {
			log.WithError(err).Error("Error closing search index")
		}
	}
	if err := s.db.Close(); err != nil {
		log.WithError(err).Error("Error closing database")
	}
}

func (s *session) orchestrator(width, height int) *pipeline.Orchestrator {
	o := &pipeline.Orchestrator{
		Library:      s.lib,
		History:      s.hist,
		HistoryPath:  historyPath(),
		Station:      &decision.PromptStation{},
		Applier:      newApplier(),
		Cropper:      crop.NewWorker(crop.ExecRunner{}),
		Ledger:       s.db,
		ScreenWidth:  width,
		ScreenHeight: height,
		ChannelDepth: globalConfig.ChannelDepth,
	}
	if s.indexer != nil {
		o.Indexer = s.indexer
	}
	return o
}

func reportSummary(summary pipeline.Summary) {
	fmt.Println("----- Curation Summary -----")
	fmt.Printf(" Categorized: %d\n", summary.Categorized)
	fmt.Printf(" Failed: %d\n", summary.Failed)
	fmt.Printf(" Interrupted: %t\n", summary.Interrupted)
	fmt.Println("----------------------------")
}
