package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/internal/crop"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("torrents", "t", false, "Also remove *.torrent files")
	cleanCmd.Flags().BoolP("magnets", "m", false, "Also remove *-magnet.txt files")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover temporary files",
	Long: `Removes interrupted downloads (*.tmp) from the wallpapers and cache directories
and scratch directories left behind by interrupted crops.
Optionally removes *.torrent and *-magnet.txt files as well.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

type cleanResult struct {
	removed map[string]int64
	failed  int64
}

func runClean(cmd *cobra.Command, args []string) error {
	cleanTorrents, _ := cmd.Flags().GetBool("torrents")
	cleanMagnets, _ := cmd.Flags().GetBool("magnets")

	res := &cleanResult{removed: map[string]int64{}}
	for _, dir := range []string{globalConfig.WallpapersDir, globalConfig.CacheDir} {
		log.Infof("Scanning for leftover files in %s...", dir)
		if err := cleanFiles(dir, cleanTorrents, cleanMagnets, res); err != nil {
			log.Errorf("Error during directory walk of %q: %v", dir, err)
			res.failed++
		}
	}
	cleanCropDirs(os.TempDir(), res)

	var summaryParts []string
	for _, kind := range []string{".tmp", ".torrent", "-magnet.txt", "crop dir"} {
		if n := res.removed[kind]; n > 0 {
			summaryParts = append(summaryParts, fmt.Sprintf("%d %s(s)", n, kind))
		}
	}
	summary := "Clean complete. Removed: "
	if len(summaryParts) > 0 {
		summary += strings.Join(summaryParts, ", ")
	} else {
		summary += "0 files"
	}
	if res.failed > 0 {
		summary += fmt.Sprintf(". Failed to remove %d item(s).", res.failed)
	}
	log.Info(summary)

	if res.failed > 0 {
		return fmt.Errorf("failed to remove %d item(s)", res.failed)
	}
	return nil
}

func cleanFiles(root string, cleanTorrents, cleanMagnets bool, res *cleanResult) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}

		lowerName := strings.ToLower(info.Name())
		fileType := ""
		switch {
		case strings.HasSuffix(lowerName, ".tmp"):
			fileType = ".tmp"
		case cleanTorrents && strings.HasSuffix(lowerName, ".torrent"):
			fileType = ".torrent"
		case cleanMagnets && strings.HasSuffix(lowerName, "-magnet.txt"):
			fileType = "-magnet.txt"
		default:
			return nil
		}

		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				log.Errorf("Failed to remove %s file %q: %v", fileType, path, err)
				res.failed++
			}
			return nil
		}
		log.Infof("Removed %s file: %s", fileType, path)
		res.removed[fileType]++
		return nil
	})
}

// cleanCropDirs removes crop scratch directories directly under dir.
func cleanCropDirs(dir string, res *cleanResult) {
	matches, err := filepath.Glob(filepath.Join(dir, crop.TempDirPrefix+"*"))
	if err != nil {
		log.WithError(err).Warn("Could not list crop scratch directories")
		return
	}
	for _, m := range matches {
		if info, err := os.Stat(m); err != nil || !info.IsDir() {
			continue
		}
		if err := os.RemoveAll(m); err != nil {
			log.Errorf("Failed to remove crop scratch directory %q: %v", m, err)
			res.failed++
			continue
		}
		log.Infof("Removed crop scratch directory: %s", m)
		res.removed["crop dir"]++
	}
}
