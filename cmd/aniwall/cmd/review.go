package cmd

import (
	"github.com/spf13/cobra"

	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
	"go-aniwall/internal/models"
	"go-aniwall/internal/pipeline"

	log "github.com/sirupsen/logrus"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Curate already downloaded wallpapers again",
	Long: `Runs stored records through the same interactive curation as 'download',
so earlier decisions can be changed.`,
}

// reviewSelection lists the records one review subcommand goes through.
type reviewSelection func(lib *library.Library, hist *history.Navigator) ([]models.Candidate, error)

func reviewCurrent(lib *library.Library, hist *history.Navigator) ([]models.Candidate, error) {
	id, ok := hist.Current()
	if !ok {
		log.Info("History is empty")
		return nil, nil
	}
	c, err := lib.Load(id)
	if err != nil {
		return nil, err
	}
	return []models.Candidate{c}, nil
}

func reviewCategory(cat models.Category) reviewSelection {
	return func(lib *library.Library, hist *history.Navigator) ([]models.Candidate, error) {
		return lib.ByCategory(cat)
	}
}

func reviewSubcommand(use, short string, selection reviewSelection) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			width, height, err := screenSize(ctx)
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			cands, err := selection(s.lib, s.hist)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				log.Info("Nothing to review")
				return nil
			}
			log.Infof("Reviewing %d wallpapers", len(cands))

			summary, err := s.orchestrator(width, height).Run(ctx, pipeline.Records(cands))
			reportSummary(summary)
			return err
		},
	}
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(
		reviewSubcommand("current", "Review the wallpaper at the history cursor", reviewCurrent),
		reviewSubcommand("liked", "Review every liked wallpaper", reviewCategory(models.CategoryLiked)),
		reviewSubcommand("disliked", "Review every disliked wallpaper", reviewCategory(models.CategoryDisliked)),
		reviewSubcommand("borked", "Review every borked wallpaper", reviewCategory(models.CategoryBorked)),
	)
}
