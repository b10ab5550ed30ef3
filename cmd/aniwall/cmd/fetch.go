package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-aniwall/internal/database"
	"go-aniwall/internal/downloader"
	"go-aniwall/internal/models"
	"go-aniwall/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download candidates without reviewing them",
	Long: `Prefetches the candidates of a query with several concurrent downloads, so a later
'download' or 'review' session does not wait on the network.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addFilterFlags(fetchCmd.Flags())
	fetchCmd.Flags().IntP("concurrency", "c", 0, "Number of concurrent downloads (overrides config)")
	bindFilterFlags("fetch", fetchCmd.Flags())
	viper.BindPFlag("fetch.concurrency", fetchCmd.Flags().Lookup("concurrency"))
}

type fetchCounters struct {
	downloaded atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

func fetchWorker(ctx context.Context, id int, jobs <-chan models.Post, stage *pipeline.DownloadStage, wg *sync.WaitGroup, writer *uilive.Writer, counters *fetchCounters) {
	defer wg.Done()
	for post := range jobs {
		if ctx.Err() != nil {
			continue
		}
		fmt.Fprintf(writer.Newline(), "Worker %d: Fetching %s...\n", id, post.Md5)
		c, err := stage.Prepare(ctx, post)
		switch {
		case errors.Is(err, pipeline.ErrAlreadyDecided):
			counters.skipped.Add(1)
			fmt.Fprintf(writer.Newline(), "Worker %d: %s already categorized (%s)\n", id, c.ID, c.Category)
		case err != nil:
			counters.failed.Add(1)
			log.WithError(err).WithField("id", post.Md5).Debug("Fetch failed")
			fmt.Fprintf(writer.Newline(), "Worker %d: Error fetching %s: %v\n", id, post.Md5, err)
		default:
			counters.downloaded.Add(1)
			fmt.Fprintf(writer.Newline(), "Worker %d: Ready %s (%dx%d)\n", id, c.ID, c.OriginalWidth, c.OriginalHeight)
		}
	}
	fmt.Fprintf(writer.Newline(), "Worker %d: Finished job processing.\n", id)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	width, height, err := screenSize(ctx)
	if err != nil {
		return err
	}
	filters, err := buildFilters("fetch", width, height)
	if err != nil {
		return err
	}
	posts, err := fetchPosts(ctx, filters)
	if err != nil {
		return err
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	stage := &pipeline.DownloadStage{
		Library:    openLibrary(),
		Downloader: downloader.NewDownloader(newDownloadClient()),
		Ledger:     db,
		Dir:        globalConfig.WallpapersDir,
	}

	concurrency := viper.GetInt("fetch.concurrency")
	if concurrency <= 0 {
		concurrency = globalConfig.Concurrency
	}

	jobs := make(chan models.Post, concurrency)
	var wg sync.WaitGroup
	var counters fetchCounters
	writer := uilive.New()
	writer.Start()

	log.Infof("Starting %d fetch workers for %d candidates...", concurrency, len(posts))
	for w := 1; w <= concurrency; w++ {
		wg.Add(1)
		go fetchWorker(ctx, w, jobs, stage, &wg, writer, &counters)
	}

	for _, p := range posts {
		if ctx.Err() != nil {
			break
		}
		jobs <- p
	}
	close(jobs)
	wg.Wait()
	writer.Stop()

	fmt.Println("----- Fetch Summary -----")
	fmt.Printf(" Candidates: %d\n", len(posts))
	fmt.Printf(" Ready: %d\n", counters.downloaded.Load())
	fmt.Printf(" Already categorized: %d\n", counters.skipped.Load())
	fmt.Printf(" Failed: %d\n", counters.failed.Load())
	fmt.Println("-------------------------")

	if ctx.Err() != nil {
		log.Warn("Fetch interrupted")
		return nil
	}
	if n := counters.failed.Load(); n > 0 {
		return fmt.Errorf("%d downloads failed", n)
	}
	return nil
}
