package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached catalog queries",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached queries with their age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.New(globalConfig.CacheDir, nil, globalConfig.CacheMaxAgeDays)
		entries, err := c.Entries()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Fingerprint\tFetched\tAge\tCandidates")
		fmt.Fprintln(tw, "-----------\t-------\t---\t----------")
		for _, e := range entries {
			age := time.Since(e.FetchedAt).Truncate(time.Minute)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Fingerprint, e.FetchedAt.Format(time.DateTime), age, e.Posts)
		}
		if err := tw.Flush(); err != nil {
			log.WithError(err).Error("Error flushing table writer for cache list")
		}
		log.Infof("%d cached queries in %s", len(entries), globalConfig.CacheDir)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := cache.New(globalConfig.CacheDir, nil, globalConfig.CacheMaxAgeDays).Clear()
		if err != nil {
			return err
		}
		log.Infof("Removed %d cached queries", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
}
