package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"go-aniwall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilters() models.Filters {
	return models.Filters{
		Tags:   "sky",
		Rating: models.FilterSafe,
		Width:  models.Range{Kind: models.RangeAtLeast, Value: 1920},
		Height: models.Range{Kind: models.RangeAtLeast, Value: 1080},
	}
}

func testClient(srv *httptest.Server, limit int) *Client {
	c := NewClient(srv.Client(), models.Config{CatalogBaseUrl: srv.URL, PageLimit: limit})
	c.RetryBackoff = time.Millisecond
	return c
}

func TestFetchPagesUntilShortPageAndSortsByScore(t *testing.T) {
	pages := map[int][]models.Post{
		1: {{Md5: "a", Score: 30}, {Md5: "b", Score: 10}},
		2: {{Md5: "c", Score: 20}, {Md5: "d", Score: 10}},
		3: {{Md5: "e", Score: 5}},
	}
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/post.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "sky rating:safe width:1920.. height:1080..", r.URL.Query().Get("tags"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pages[page])
	}))
	defer srv.Close()

	posts, err := testClient(srv, 2).Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.EqualValues(t, 3, requests.Load())

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.Md5
	}
	// Equal scores keep their catalog order (b before d).
	assert.Equal(t, []string{"e", "b", "d", "c", "a"}, ids)
}

func TestFetchEmptyFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	posts, err := testClient(srv, 100).Fetch(context.Background(), testFilters())
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestGetPageRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"md5":"a","score":1,"rating":"s"}]`)
	}))
	defer srv.Close()

	posts, err := testClient(srv, 100).GetPage(context.Background(), testFilters(), 1)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.EqualValues(t, 3, requests.Load())
}

func TestGetPageDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv, 100).GetPage(context.Background(), testFilters(), 1)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.EqualValues(t, 1, requests.Load())
}

func TestGetPageGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv, 100).GetPage(context.Background(), testFilters(), 1)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLoggingTransportWritesLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"md5":"logged"}]`)
	}))
	defer srv.Close()

	logPath := filepath.Join(t.TempDir(), "api.log")
	transport, err := NewLoggingTransport(srv.Client().Transport, logPath)
	require.NoError(t, err)

	c := testClient(srv, 100)
	c.HttpClient = &http.Client{Transport: transport}
	posts, err := c.GetPage(context.Background(), testFilters(), 1)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "--- Request")
	assert.Contains(t, string(data), `"md5":"logged"`)
}
