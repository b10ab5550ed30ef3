package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-aniwall/internal/api"
	"go-aniwall/internal/cache"
	"go-aniwall/internal/downloader"
	"go-aniwall/internal/models"
	"go-aniwall/internal/pipeline"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch candidates from the catalog, download them and curate them interactively",
	Long: `Queries the catalog (through the local cache), downloads every candidate that has
not been categorized yet and shows them one by one as your wallpaper. For each one
you choose liked, disliked or borked, or ask for a smart crop to your screen size.`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addFilterFlags(downloadCmd.Flags())
	bindFilterFlags("download", downloadCmd.Flags())
}

// addFilterFlags defines the catalog query flags shared by download and fetch.
func addFilterFlags(flags *pflag.FlagSet) {
	flags.String("download-width", "", "Width range: N, N.. or ..N (default: <screen width>..)")
	flags.String("download-height", "", "Height range: N, N.. or ..N (default: <screen height>..)")
	flags.StringP("tags", "t", "", "Tags to search for, separated by spaces or commas (overrides config)")
	flags.StringP("rating", "r", "", "Rating filter: safe|s, questionable|q, explicit|e, questionableplus|qe, questionableless|qs (overrides config)")
}

func bindFilterFlags(prefix string, flags *pflag.FlagSet) {
	viper.BindPFlag(prefix+".width", flags.Lookup("download-width"))
	viper.BindPFlag(prefix+".height", flags.Lookup("download-height"))
	viper.BindPFlag(prefix+".tags", flags.Lookup("tags"))
	viper.BindPFlag(prefix+".rating", flags.Lookup("rating"))
}

// buildFilters resolves the query from bound flags, config and screen size.
func buildFilters(prefix string, screenW, screenH int) (models.Filters, error) {
	f := models.Filters{Tags: globalConfig.Tags}
	if tags := viper.GetString(prefix + ".tags"); tags != "" {
		f.Tags = tags
	}

	rating := globalConfig.Rating
	if r := viper.GetString(prefix + ".rating"); r != "" {
		rating = r
	}
	parsed, err := models.ParseRatingFilter(rating)
	if err != nil {
		return models.Filters{}, err
	}
	f.Rating = parsed

	if f.Width, err = rangeOrAtLeast(viper.GetString(prefix+".width"), screenW); err != nil {
		return models.Filters{}, fmt.Errorf("--download-width: %w", err)
	}
	if f.Height, err = rangeOrAtLeast(viper.GetString(prefix+".height"), screenH); err != nil {
		return models.Filters{}, fmt.Errorf("--download-height: %w", err)
	}
	return f, nil
}

func rangeOrAtLeast(s string, min int) (models.Range, error) {
	if s == "" {
		return models.Range{Kind: models.RangeAtLeast, Value: min}, nil
	}
	return models.ParseRange(s)
}

// fetchPosts returns the candidate list for filters through the fingerprint cache.
func fetchPosts(ctx context.Context, filters models.Filters) ([]models.Post, error) {
	client := api.NewClient(newHttpClient(), globalConfig)
	c := cache.New(globalConfig.CacheDir, client, globalConfig.CacheMaxAgeDays)

	log.WithField("query", filters.QueryTags()).Info("Looking up candidates")
	posts, err := c.GetOrFetch(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}
	log.Infof("%d candidates", len(posts))
	return posts, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	width, height, err := screenSize(ctx)
	if err != nil {
		return err
	}
	filters, err := buildFilters("download", width, height)
	if err != nil {
		return err
	}
	posts, err := fetchPosts(ctx, filters)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	stage := &pipeline.DownloadStage{
		Library:    s.lib,
		Downloader: downloader.NewDownloader(newDownloadClient()),
		Ledger:     s.db,
		Dir:        globalConfig.WallpapersDir,
	}

	summary, err := s.orchestrator(width, height).Run(ctx, stage.Source(posts))
	reportSummary(summary)
	return err
}
