package library

import (
	"os"
	"path/filepath"
	"testing"

	"go-aniwall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, cat models.Category) models.Candidate {
	return models.Candidate{
		ID:               id,
		SourceUrl:        "https://example.com/" + id + ".png",
		OriginalWidth:    1920,
		OriginalHeight:   1080,
		Rating:           models.RatingSafe,
		PreferredVariant: models.VariantOriginal,
		Category:         cat,
		LocalPath:        "/w/" + id + ".png",
	}
}

func TestSaveAndLoad(t *testing.T) {
	lib := New(t.TempDir())
	c := record("abc", models.CategoryLiked)
	c.PreferredVariant = models.VariantCropped
	c.CropData = &models.CropData{CroppedPath: "/w/abc_cropped.png", OffsetX: 10, OffsetY: 20}

	require.NoError(t, lib.Save(c))
	assert.True(t, lib.Has("abc"))

	got, err := lib.Load("abc")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	// Records are human readable.
	data, err := os.ReadFile(lib.RecordPath("abc"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"category\": \"Liked\"")
}

func TestLoadErrors(t *testing.T) {
	lib := New(t.TempDir())

	_, err := lib.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(lib.RecordPath("bad"), []byte("{"), 0600))
	_, err = lib.Load("bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(lib.RecordPath("cropless"), []byte(`{"id":"cropless","preferred_variant":"Cropped"}`), 0600))
	_, err = lib.Load("cropless")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(lib.RecordPath("badcat"), []byte(`{"id":"badcat","category":"Meh"}`), 0600))
	_, err = lib.Load("badcat")
	assert.Error(t, err)
}

func TestListing(t *testing.T) {
	dir := t.TempDir()
	lib := New(dir)
	require.NoError(t, lib.Save(record("b", models.CategoryLiked)))
	require.NoError(t, lib.Save(record("a", models.CategoryDisliked)))
	require.NoError(t, lib.Save(record("c", "")))
	require.NoError(t, os.WriteFile(lib.RecordPath("broken"), []byte("nope"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history"), []byte("{}"), 0600))

	ids, err := lib.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "broken", "c"}, ids)

	all, err := lib.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	liked, err := lib.ByCategory(models.CategoryLiked)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, "b", liked[0].ID)

	missing := New(filepath.Join(dir, "nope"))
	ids, err = missing.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRejectsEscapingIDs(t *testing.T) {
	root := t.TempDir()
	lib := New(filepath.Join(root, "walls"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.json"), []byte(`{"id":"x"}`), 0600))

	for _, id := range []string{"../x", "..", "", "a/b", `a\b`} {
		_, err := lib.Load(id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
		assert.False(t, lib.Has(id), id)
		assert.ErrorIs(t, lib.Save(record(id, models.CategoryLiked)), ErrInvalidID, id)
	}
	assert.NoFileExists(t, filepath.Join(root, "walls", "..", ".json"))
}

func TestParseDigest(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0123456789abcdef0123456789abcdef", want: "0123456789abcdef0123456789abcdef"},
		{in: " 0123456789ABCDEF0123456789ABCDEF\n", want: "0123456789abcdef0123456789abcdef"},
		{in: "../x", wantErr: true},
		{in: "0123456789abcdef0123456789abcdeg", wantErr: true},
		{in: "0123456789abcdef", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDigest(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidID, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
