package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go-aniwall/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited = errors.New("catalog rate limit exceeded")
	ErrNotFound    = errors.New("catalog resource not found")
	ErrServerError = errors.New("catalog server error")
	ErrBadRequest  = errors.New("catalog rejected the request")
)

const (
	DefaultBaseUrl   = "https://konachan.net"
	DefaultPageLimit = 1000
)

// Fetcher returns the full, score-sorted candidate list for a set of filters.
type Fetcher interface {
	Fetch(ctx context.Context, filters models.Filters) ([]models.Post, error)
}

// Client pages through the catalog's post.json listing.
type Client struct {
	HttpClient *http.Client
	BaseUrl    string
	PageLimit  int
	// PageDelay is slept between consecutive page requests.
	PageDelay time.Duration
	// RetryBackoff is the base backoff unit; attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration
	MaxRetries   int
}

// NewClient creates a catalog client from the loaded configuration.
func NewClient(httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{
		HttpClient:   httpClient,
		BaseUrl:      cfg.CatalogBaseUrl,
		PageLimit:    cfg.PageLimit,
		PageDelay:    time.Duration(cfg.ApiDelayMs) * time.Millisecond,
		RetryBackoff: 2 * time.Second,
		MaxRetries:   3,
	}
	if c.BaseUrl == "" {
		c.BaseUrl = DefaultBaseUrl
	}
	if c.PageLimit <= 0 {
		c.PageLimit = DefaultPageLimit
	}
	return c
}

// Fetch requests pages starting at 1 until a page is shorter than the page limit,
// then sorts the concatenation ascending by score. Equal scores keep catalog order.
func (c *Client) Fetch(ctx context.Context, filters models.Filters) ([]models.Post, error) {
	var all []models.Post
	for page := 1; ; page++ {
		if page > 1 && c.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.PageDelay):
			}
		}

		posts, err := c.GetPage(ctx, filters, page)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		log.WithFields(log.Fields{"page": page, "posts": len(posts)}).Debug("Fetched catalog page")
		all = append(all, posts...)

		if len(posts) < c.PageLimit {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score < all[j].Score
	})
	log.Infof("Fetched %d posts from catalog", len(all))
	return all, nil
}

// PageUrl builds the post.json URL for a single page.
func (c *Client) PageUrl(filters models.Filters, page int) string {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(c.PageLimit))
	values.Set("page", strconv.Itoa(page))
	values.Set("tags", filters.QueryTags())
	return fmt.Sprintf("%s/post.json?%s", c.BaseUrl, values.Encode())
}

// GetPage fetches and decodes a single page, retrying transient failures.
func (c *Client) GetPage(ctx context.Context, filters models.Filters, page int) ([]models.Post, error) {
	reqURL := c.PageUrl(filters, page)

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			sleepDuration := time.Duration(attempt) * c.RetryBackoff
			if errors.Is(lastErr, ErrRateLimited) {
				// Longer backoff for rate limits
				sleepDuration *= 2
			}
			log.WithError(lastErr).Warnf("Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleepDuration)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		body, err := c.doRequest(ctx, reqURL)
		if err == nil {
			var posts []models.Post
			if err := json.Unmarshal(body, &posts); err != nil {
				log.Debugf("Response body causing unmarshal error: %s", string(body))
				return nil, fmt.Errorf("error unmarshalling response JSON: %w", err)
			}
			return posts, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w (status code %d)", ErrBadRequest, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}

// retryable reports whether a request error is worth another attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadRequest):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
