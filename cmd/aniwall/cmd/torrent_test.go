package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCollectionTorrent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "b_cropped.png")
	b := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(a, []byte(strings.Repeat("x", 1000)), 0644))
	require.NoError(t, os.WriteFile(b, []byte(strings.Repeat("y", 300)), 0644))

	trackers := []string{"udp://tracker.example:1337/announce", "https://backup.example/announce"}
	mi, err := buildCollectionTorrent("aniwall-liked", []string{a, b}, trackers)
	require.NoError(t, err)
	assert.Equal(t, trackers[0], mi.Announce)
	assert.Len(t, mi.AnnounceList, 2)

	info, err := mi.UnmarshalInfo()
	require.NoError(t, err)
	assert.Equal(t, "aniwall-liked", info.Name)
	require.Len(t, info.Files, 2)
	assert.Equal(t, []string{"a.jpg"}, info.Files[0].Path)
	assert.Equal(t, int64(1300), info.TotalLength())

	magnet := magnetLink(mi, "aniwall-liked", trackers)
	assert.True(t, strings.HasPrefix(magnet, "magnet:?xt=urn:btih:"+mi.HashInfoBytes().HexString()))
	assert.Contains(t, magnet, "dn=aniwall-liked")
}

func TestBuildCollectionTorrentDuplicateNames(t *testing.T) {
	one := filepath.Join(t.TempDir(), "same.png")
	two := filepath.Join(t.TempDir(), "same.png")
	require.NoError(t, os.WriteFile(one, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(two, []byte("2"), 0644))

	_, err := buildCollectionTorrent("dup", []string{one, two}, []string{"udp://t"})
	assert.Error(t, err)
}
