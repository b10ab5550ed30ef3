package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/index"
)

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search curated wallpapers in the Bleve index",
	Long: `Runs a Bleve query string against every categorized wallpaper. Fields include
id, category, rating, variant, tags, score, width, height and filePath, e.g.

  aniwall search '+category:liked +tags:sky'
  aniwall search '+rating:safe width:>=2560'

--rebuild recreates the index from the stored records first; the query is then optional.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("limit", "n", 20, "Maximum number of hits to print")
	searchCmd.Flags().Bool("rebuild", false, "Recreate the index from the stored records before searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit, _ := cmd.Flags().GetInt("limit")
	rebuild, _ := cmd.Flags().GetBool("rebuild")

	if rebuild {
		cands, err := openLibrary().All()
		if err != nil {
			return err
		}
		n, err := index.Rebuild(globalConfig.BleveIndexPath, cands)
		if err != nil {
			return err
		}
		log.Infof("Rebuilt search index with %d curated wallpapers", n)
	}
	if query == "" {
		if rebuild {
			return nil
		}
		return errors.New("a search query is required")
	}

	bleveIndex, err := bleve.Open(globalConfig.BleveIndexPath)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return fmt.Errorf("no search index at %s, curate some wallpapers first", globalConfig.BleveIndexPath)
		}
		return fmt.Errorf("failed to open Bleve index at %s: %w", globalConfig.BleveIndexPath, err)
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing Bleve index: %v", err)
		}
	}()

	log.Debugf("Performing search with query: %s", query)
	searchResults, err := index.SearchIndex(bleveIndex, query, limit)
	if err != nil {
		return fmt.Errorf("error performing search: %w", err)
	}

	log.Infof("Search finished. Hits: %d, Total: %d, Took: %s",
		len(searchResults.Hits), searchResults.Total, searchResults.Took)

	if searchResults.Total == 0 {
		fmt.Println("No results found matching your query.")
		return nil
	}
	fmt.Println("--- Search Results ---")
	for i, hit := range searchResults.Hits {
		fmt.Printf("[%d] ID: %s (Score: %.2f)\n", i+1, hit.ID, hit.Score)
		for field, value := range hit.Fields {
			fmt.Printf("  %s: %v\n", field, value)
		}
		fmt.Println("---")
	}
	return nil
}
