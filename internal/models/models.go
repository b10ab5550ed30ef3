package models

import (
	"path/filepath"
	"strings"
	"time"
)

type (
	Config struct {
		// Paths
		WallpapersDir  string `toml:"WallpapersDir"`
		CacheDir       string `toml:"CacheDir"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Screen
		ScreenWidth         int    `toml:"ScreenWidth"`
		ScreenHeight        int    `toml:"ScreenHeight"`
		SetWallpaperCommand string `toml:"SetWallpaperCommand"`
		ScreenWidthCommand  string `toml:"ScreenWidthCommand"`
		ScreenHeightCommand string `toml:"ScreenHeightCommand"`

		// Catalog Query Behavior
		CatalogBaseUrl      string `toml:"CatalogBaseUrl"`
		PageLimit           int    `toml:"PageLimit"`
		Tags                string `toml:"Tags"`
		Rating              string `toml:"Rating"`
		CacheMaxAgeDays     int    `toml:"CacheMaxAgeDays"`
		ApiDelayMs          int    `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int    `toml:"ApiClientTimeoutSec"`

		// Pipeline Behavior
		ChannelDepth int `toml:"ChannelDepth"`
		Concurrency  int `toml:"Concurrency"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// Post is a single entry of the catalog's post.json listing.
	Post struct {
		Md5     string `json:"md5"`
		FileUrl string `json:"file_url"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
		Score   int    `json:"score"`
		Rating  Rating `json:"rating"`
		Tags    string `json:"tags"`
	}

	CropData struct {
		CroppedPath string `json:"cropped_path"`
		OffsetX     int    `json:"offset_x"`
		OffsetY     int    `json:"offset_y"`
	}

	// Candidate is the persisted record of one downloaded image.
	// An empty Category means the operator has not decided yet.
	Candidate struct {
		ID               string    `json:"id"`
		SourceUrl        string    `json:"source_url"`
		OriginalWidth    int       `json:"original_width"`
		OriginalHeight   int       `json:"original_height"`
		Score            int       `json:"score"`
		Rating           Rating    `json:"rating"`
		Tags             []string  `json:"tags,omitempty"`
		PreferredVariant Variant   `json:"preferred_variant"`
		Category         Category  `json:"category,omitempty"`
		LocalPath        string    `json:"local_path"`
		CropData         *CropData `json:"crop_data,omitempty"`
	}

	// LedgerEntry is the status record kept in the bitcask database for each candidate.
	LedgerEntry struct {
		ID               string    `json:"id"`
		Status           string    `json:"status"`
		Category         Category  `json:"category,omitempty"`
		PreferredVariant Variant   `json:"preferredVariant"`
		LocalPath        string    `json:"localPath"`
		UpdatedAt        time.Time `json:"updatedAt"`
		ErrorDetails     string    `json:"errorDetails,omitempty"`
	}
)

// Ledger Status Constants
const (
	StatusPending     = "Pending"
	StatusCropped     = "Cropped"
	StatusCategorized = "Categorized"
	StatusError       = "Error"
)

// IsDecided reports whether the operator already assigned a category.
func (c Candidate) IsDecided() bool {
	return c.Category != ""
}

// DisplayPath returns the artifact that should be shown for the preferred variant.
func (c Candidate) DisplayPath() string {
	if c.PreferredVariant == VariantCropped && c.CropData != nil {
		return c.CropData.CroppedPath
	}
	return c.LocalPath
}

// CroppedPath is the canonical location of the cropped artifact: <stem>_cropped<ext>.
func (c Candidate) CroppedPath() string {
	ext := filepath.Ext(c.LocalPath)
	return strings.TrimSuffix(c.LocalPath, ext) + "_cropped" + ext
}

// NewCandidate builds an undecided record for a downloaded post.
func NewCandidate(p Post, localPath string) Candidate {
	return Candidate{
		ID:               p.Md5,
		SourceUrl:        p.FileUrl,
		OriginalWidth:    p.Width,
		OriginalHeight:   p.Height,
		Score:            p.Score,
		Rating:           p.Rating,
		Tags:             strings.Fields(p.Tags),
		PreferredVariant: VariantOriginal,
		LocalPath:        localPath,
	}
}
