package index

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go-aniwall/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "aniwall.bleve"

// Item is the searchable view of a candidate record. Fields are queryable by their
// JSON tag names, e.g. '+category:liked +tags:sky' or 'width:>=2560'.
type Item struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Rating   string   `json:"rating"`
	Variant  string   `json:"variant"`
	Tags     []string `json:"tags,omitempty"`
	Score    float64  `json:"score"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	FilePath string   `json:"filePath"`
	Source   string   `json:"source,omitempty"`

	// Torrent Information (populated by the 'torrent' command)
	TorrentPath string `json:"torrentPath,omitempty"`
	MagnetLink  string `json:"magnetLink,omitempty"`
}

// ItemFromCandidate builds the index document for a record.
func ItemFromCandidate(c models.Candidate) Item {
	return Item{
		ID:       c.ID,
		Category: strings.ToLower(string(c.Category)),
		Rating:   strings.ToLower(c.Rating.String()),
		Variant:  strings.ToLower(string(c.PreferredVariant)),
		Tags:     c.Tags,
		Score:    float64(c.Score),
		Width:    float64(c.OriginalWidth),
		Height:   float64(c.OriginalHeight),
		FilePath: c.DisplayPath(),
		Source:   c.SourceUrl,
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new index at: %s", indexPath)
		index, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index %s: %w", indexPath, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", indexPath, err)
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// SearchIndex performs a query string search, returning all stored fields.
func SearchIndex(index bleve.Index, query string, size int) (*bleve.SearchResult, error) {
	searchRequest := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	searchRequest.Fields = []string{"*"}
	if size > 0 {
		searchRequest.Size = size
	}
	return index.Search(searchRequest)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Warnf("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}

// Rebuild recreates the index at indexPath from the categorized candidates in cands
// and returns how many were indexed.
func Rebuild(indexPath string, cands []models.Candidate) (int, error) {
	if err := DeleteIndex(indexPath); err != nil {
		return 0, fmt.Errorf("removing index %s: %w", indexPath, err)
	}
	idx, err := OpenOrCreateIndex(indexPath)
	if err != nil {
		return 0, err
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, c := range cands {
		if !c.IsDecided() {
			continue
		}
		if err := batch.Index(c.ID, ItemFromCandidate(c)); err != nil {
			return 0, fmt.Errorf("indexing %s: %w", c.ID, err)
		}
	}
	n := batch.Size()
	if err := idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("writing index batch: %w", err)
	}
	return n, nil
}

// Indexer indexes categorized candidates from concurrent pipeline stages.
type Indexer struct {
	mu    sync.Mutex
	index bleve.Index
}

func NewIndexer(index bleve.Index) *Indexer {
	return &Indexer{index: index}
}

func (ix *Indexer) Index(c models.Candidate) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := IndexItem(ix.index, ItemFromCandidate(c)); err != nil {
		return fmt.Errorf("indexing %s: %w", c.ID, err)
	}
	return nil
}

func (ix *Indexer) Close() error {
	return ix.index.Close()
}
