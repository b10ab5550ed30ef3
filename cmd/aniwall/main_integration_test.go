package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup ---

var (
	binaryName  = "aniwall"
	binaryPath  string
	projectRoot string
)

// TestMain builds the binary once before all tests in the package
func TestMain(m *testing.M) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Println("Could not get caller information")
		os.Exit(1)
	}
	projectRoot = filepath.Join(filepath.Dir(filename), "..", "..")

	buildDir, err := os.MkdirTemp("", "aniwall-it-")
	if err != nil {
		fmt.Printf("Failed to create build dir: %v\n", err)
		os.Exit(1)
	}
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	binaryPath = filepath.Join(buildDir, binaryName)

	fmt.Println("Building binary for integration tests...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	buildCmd.Dir = filepath.Join(projectRoot, "cmd", "aniwall")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		fmt.Printf("Failed to build binary: %v\nOutput:\n%s\n", err, string(buildOutput))
		os.Exit(1)
	}

	exitCode := m.Run()
	os.RemoveAll(buildDir)
	os.Exit(exitCode)
}

// --- Helper Functions ---

type workspace struct {
	config     string
	wallpapers string
	cache      string
}

// newWorkspace writes a config pointing every store into fresh temp dirs.
func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		config:     filepath.Join(root, "config.toml"),
		wallpapers: filepath.Join(root, "walls"),
		cache:      filepath.Join(root, "cache"),
	}
	content := fmt.Sprintf(`
WallpapersDir = %q
CacheDir = %q
ScreenWidth = 1920
ScreenHeight = 1080
SetWallpaperCommand = "true {}"
`, ws.wallpapers, ws.cache)
	require.NoError(t, os.WriteFile(ws.config, []byte(content), 0644))
	return ws
}

// runCommand executes the binary against the workspace config
func runCommand(t *testing.T, ws workspace, args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, append([]string{"--config", ws.config}, args...)...)
	cmd.Dir = projectRoot

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed with error: %v\nStderr:\n%s", err, stderr.String())
	}
	return stdout.String(), stderr.String(), err
}

// --- Test Cases ---

func TestHelpListsCommands(t *testing.T) {
	ws := newWorkspace(t)
	stdout, _, err := runCommand(t, ws, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"fetch", "download", "review", "set", "get", "search", "torrent", "clean", "cache", "db"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestStartupCreatesDirectories(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws, "cache", "list")
	require.NoError(t, err)
	assert.DirExists(t, ws.wallpapers)
	assert.DirExists(t, ws.cache)
}

func TestDbViewEmpty(t *testing.T) {
	ws := newWorkspace(t)
	stdout, _, err := runCommand(t, ws, "db", "view")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Status")
}

func TestSetPreviousWithEmptyHistory(t *testing.T) {
	ws := newWorkspace(t)
	_, stderr, err := runCommand(t, ws, "set", "previous")
	require.NoError(t, err)
	assert.Contains(t, stderr, "History is empty")
}

func TestSetFileMissing(t *testing.T) {
	ws := newWorkspace(t)
	_, stderr, err := runCommand(t, ws, "set", "file", filepath.Join(ws.wallpapers, "absent.png"))
	require.Error(t, err)
	assert.Contains(t, stderr, "absent.png")
}

func TestGetUnknownID(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws, "get", "id", "0123456789abcdef0123456789abcdef")
	assert.Error(t, err)
}

func TestSetRandomRejectsBadRating(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws, "set", "random", "--rating", "nsfw")
	assert.Error(t, err)
}

func TestIDsMustBeDigests(t *testing.T) {
	ws := newWorkspace(t)
	for _, sub := range []string{"get", "set"} {
		_, stderr, err := runCommand(t, ws, sub, "id", "../x")
		require.Error(t, err, sub)
		assert.Contains(t, stderr, "invalid candidate id", sub)
	}
}

func TestSearchRebuildOnEmptyLibrary(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws, "search", "--rebuild")
	require.NoError(t, err)

	_, _, err = runCommand(t, ws, "search")
	assert.Error(t, err)
}

func TestDbViewUnknownID(t *testing.T) {
	ws := newWorkspace(t)
	_, stderr, err := runCommand(t, ws, "db", "view", "0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, stderr, "ledger entry")
}
