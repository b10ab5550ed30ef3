package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/index"
	"go-aniwall/internal/models"
)

const torrentPieceLength = 512 * 1024

var (
	announceURLs        []string
	torrentOutputDir    string
	torrentName         string
	torrentCategory     string
	overwriteTorrents   bool
	generateMagnetLinks bool
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate a .torrent file of a curated collection",
	Long: `Builds one multi-file BitTorrent metainfo file containing the preferred variant
of every wallpaper in a category (liked by default), so the collection can be shared.
You must specify at least one tracker announce URL.`,
	Args: cobra.NoArgs,
	RunE: runTorrent,
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	torrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save the .torrent file (default: wallpapers directory)")
	torrentCmd.Flags().StringVar(&torrentName, "name", "aniwall-liked", "Torrent name")
	torrentCmd.Flags().StringVar(&torrentCategory, "category", "liked", "Category to share: liked|l, disliked|d, borked|b")
	torrentCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite an existing .torrent file")
	torrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Generate a .txt file containing the magnet link alongside the .torrent file")
}

func runTorrent(cmd *cobra.Command, args []string) error {
	if len(announceURLs) == 0 {
		return errors.New("at least one --announce URL is required")
	}
	category, err := models.ParseCategory(torrentCategory)
	if err != nil {
		return err
	}

	cands, err := openLibrary().ByCategory(category)
	if err != nil {
		return err
	}
	var files []string
	for _, c := range cands {
		p := c.DisplayPath()
		if _, err := os.Stat(p); err != nil {
			log.WithError(err).WithField("id", c.ID).Warn("Skipping wallpaper without image")
			continue
		}
		files = append(files, p)
	}
	if len(files) == 0 {
		log.Infof("No %s wallpapers to share.", category)
		return nil
	}

	outputDir := torrentOutputDir
	if outputDir == "" {
		outputDir = globalConfig.WallpapersDir
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory %s: %w", outputDir, err)
	}
	outPath := filepath.Join(outputDir, torrentName+".torrent")
	if _, err := os.Stat(outPath); err == nil && !overwriteTorrents {
		log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
		return nil
	}

	log.Infof("Building torrent of %d %s wallpapers...", len(files), category)
	mi, err := buildCollectionTorrent(torrentName, files, announceURLs)
	if err != nil {
		return err
	}
	if err := writeTorrentFile(outPath, mi); err != nil {
		return err
	}
	log.WithField("path", outPath).Info("Successfully generated torrent file")

	magnetURI := magnetLink(mi, torrentName, announceURLs)
	if generateMagnetLinks {
		magnetOutPath := strings.TrimSuffix(outPath, ".torrent") + "-magnet.txt"
		if err := os.WriteFile(magnetOutPath, []byte(magnetURI), 0644); err != nil {
			log.WithError(err).WithField("path", magnetOutPath).Error("Failed to write magnet link file")
		} else {
			log.WithField("path", magnetOutPath).Info("Successfully generated magnet link file")
		}
	}

	recordTorrentInIndex(cands, outPath, magnetURI)
	return nil
}

// buildCollectionTorrent hashes files into a multi-file torrent named name. Each file
// appears at the top level under its base name.
func buildCollectionTorrent(name string, files []string, trackers []string) (*metainfo.MetaInfo, error) {
	sorted := append([]string(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return filepath.Base(sorted[i]) < filepath.Base(sorted[j]) })

	byName := make(map[string]string, len(sorted))
	info := metainfo.Info{Name: name, PieceLength: torrentPieceLength}
	for _, p := range sorted {
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("error stating %s: %w", p, err)
		}
		base := filepath.Base(p)
		if _, dup := byName[base]; dup {
			return nil, fmt.Errorf("duplicate file name %s in collection", base)
		}
		byName[base] = p
		info.Files = append(info.Files, metainfo.FileInfo{Length: st.Size(), Path: []string{base}})
	}

	err := info.GeneratePieces(func(fi metainfo.FileInfo) (io.ReadCloser, error) {
		return os.Open(byName[fi.Path[0]])
	})
	if err != nil {
		return nil, fmt.Errorf("error hashing torrent pieces: %w", err)
	}

	mi := &metainfo.MetaInfo{AnnounceList: make([][]string, len(trackers))}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}
	mi.CreatedBy = "aniwall"
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("error marshaling torrent info: %w", err)
	}
	return mi, nil
}

func writeTorrentFile(outPath string, mi *metainfo.MetaInfo) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	defer f.Close()
	if err := mi.Write(f); err != nil {
		return fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	return nil
}

func magnetLink(mi *metainfo.MetaInfo, name string, trackers []string) string {
	magnetParts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(name)),
	}
	for _, tracker := range trackers {
		magnetParts = append(magnetParts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	return strings.Join(magnetParts, "&")
}

// recordTorrentInIndex stores the torrent location on every shared wallpaper's index entry.
func recordTorrentInIndex(cands []models.Candidate, torrentPath, magnetURI string) {
	bleveIndex, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warn("Search index unavailable, torrent not recorded")
		return
	}
	defer bleveIndex.Close()

	for _, c := range cands {
		item := index.ItemFromCandidate(c)
		item.TorrentPath = torrentPath
		item.MagnetLink = magnetURI
		if err := index.IndexItem(bleveIndex, item); err != nil {
			log.WithError(err).WithField("id", c.ID).Warn("Failed to update index entry")
		}
	}
}
