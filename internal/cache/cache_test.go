package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-aniwall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls int
	posts []models.Post
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, filters models.Filters) ([]models.Post, error) {
	f.calls++
	return f.posts, f.err
}

func filters() models.Filters {
	return models.Filters{
		Tags:   "sky clouds",
		Rating: models.FilterSafe,
		Width:  models.Range{Kind: models.RangeAtLeast, Value: 1920},
		Height: models.Range{Kind: models.RangeAtLeast, Value: 1080},
	}
}

// seed writes an entry for f and backdates it by age.
func seed(t *testing.T, c *Cache, f models.Filters, posts []models.Post, age time.Duration) {
	t.Helper()
	fp := Fingerprint(f)
	require.NoError(t, c.write(fp, posts))
	mtime := c.Now().Add(-age)
	require.NoError(t, os.Chtimes(c.path(fp), mtime, mtime))
}

func TestFingerprintIsStable(t *testing.T) {
	a := filters()
	b := models.Filters{Height: a.Height, Width: a.Width, Rating: a.Rating, Tags: "Clouds,SKY"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)

	c := a
	c.Width = models.Range{Kind: models.RangeExact, Value: 1920}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestGetOrFetch(t *testing.T) {
	old := []models.Post{{Md5: "old"}}
	fresh := []models.Post{{Md5: "new"}}

	tests := []struct {
		name       string
		seedPosts  []models.Post
		seedAge    time.Duration
		fetchErr   error
		wantCalls  int
		wantFirst  string
		wantErr    bool
		wantStored string
	}{
		{"Fresh entry is returned without fetching", old, 3 * 24 * time.Hour, nil, 0, "old", false, "old"},
		{"Five days and a bit is still fresh", old, 5*24*time.Hour + time.Hour, nil, 0, "old", false, "old"},
		{"Six day old entry is refetched", old, 6 * 24 * time.Hour, nil, 1, "new", false, "new"},
		{"Empty entry is refetched", []models.Post{}, time.Hour, nil, 1, "new", false, "new"},
		{"Missing entry is fetched", nil, 0, nil, 1, "new", false, "new"},
		{"Stale entry survives fetch failure", old, 10 * 24 * time.Hour, errors.New("offline"), 1, "old", false, "old"},
		{"Fetch failure without stale entry", nil, 0, errors.New("offline"), 1, "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{posts: fresh, err: tt.fetchErr}
			c := New(t.TempDir(), fetcher, DefaultMaxAgeDays)
			if tt.seedPosts != nil {
				seed(t, c, filters(), tt.seedPosts, tt.seedAge)
			}

			got, err := c.GetOrFetch(context.Background(), filters())
			assert.Equal(t, tt.wantCalls, fetcher.calls)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.wantFirst, got[0].Md5)

			stored, _, err := c.read(Fingerprint(filters()))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored[0].Md5)
		})
	}
}

func TestCorruptEntryIsTreatedAsMissing(t *testing.T) {
	fetcher := &fakeFetcher{posts: []models.Post{{Md5: "new"}}}
	c := New(t.TempDir(), fetcher, DefaultMaxAgeDays)
	require.NoError(t, os.WriteFile(c.path(Fingerprint(filters())), []byte("garbage"), 0600))

	got, err := c.GetOrFetch(context.Background(), filters())
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].Md5)
	assert.Equal(t, 1, fetcher.calls)
}

func TestEntriesAndClear(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, &fakeFetcher{}, DefaultMaxAgeDays)
	seed(t, c, filters(), []models.Post{{Md5: "a"}, {Md5: "b"}}, time.Hour)
	other := filters()
	other.Rating = models.FilterExplicit
	seed(t, c, other, []models.Post{{Md5: "c"}}, 48*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Fingerprint(filters()), entries[0].Fingerprint)
	assert.Equal(t, 2, entries[0].Posts)

	removed, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err = c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
