package release

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaoticbest/vibehub/internal/hub"
)

func newTestManager(t *testing.T) (*Manager, hub.Paths) {
	t.Helper()
	paths := hub.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureLayout())
	return NewManager(paths, zerolog.Nop()), paths
}

// buildOutput creates a fake build output dir with an index.html plus
// entries that must never reach the release area.
func buildOutput(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(content), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("js"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "left-pad"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vibe.yaml"), []byte("id: x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte{0}, 0o644))

	return dir
}

func TestPublish(t *testing.T) {
	m, paths := newTestManager(t)

	dir, err := m.Publish("tetris", 1, buildOutput(t, "<h1>v1</h1>"))
	require.NoError(t, err)
	assert.Equal(t, paths.ReleaseDir("tetris", 1), dir)

	content, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>v1</h1>", string(content))

	_, err = os.Stat(filepath.Join(dir, "assets", "app.js"))
	assert.NoError(t, err)

	// Ignored entries never reach the release
	for _, name := range []string{".git", "node_modules", "vibe.yaml", ".DS_Store"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should not be published", name)
	}

	// No staging dirs left behind
	entries, err := os.ReadDir(paths.ReleasesDir("tetris"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublishSameNumberTwice(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Publish("tetris", 1, buildOutput(t, "one"))
	require.NoError(t, err)

	_, err = m.Publish("tetris", 1, buildOutput(t, "two"))
	assert.Error(t, err, "publishing the same number twice must fail")
}

func TestPublishSkipsSymlinks(t *testing.T) {
	m, _ := newTestManager(t)

	output := buildOutput(t, "content")
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(output, "sneaky")))

	dir, err := m.Publish("tetris", 1, output)
	require.NoError(t, err)

	_, err = os.Lstat(filepath.Join(dir, "sneaky"))
	assert.True(t, os.IsNotExist(err), "symlinks in build output should be skipped")
}

func TestSetCurrentAndCurrent(t *testing.T) {
	m, paths := newTestManager(t)

	_, err := m.Publish("tetris", 1, buildOutput(t, "v1"))
	require.NoError(t, err)

	err = m.SetCurrent("tetris", 1)
	require.NoError(t, err)

	info, err := os.Lstat(paths.CurrentLink("tetris"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "current pointer should be a symlink")

	number, dir, err := m.Current("tetris")
	require.NoError(t, err)
	assert.Equal(t, 1, number)
	assert.Equal(t, paths.ReleaseDir("tetris", 1), dir)

	content, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
}

func TestSetCurrentSwapsAtomically(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Publish("tetris", 1, buildOutput(t, "v1"))
	require.NoError(t, err)
	_, err = m.Publish("tetris", 2, buildOutput(t, "v2"))
	require.NoError(t, err)

	require.NoError(t, m.SetCurrent("tetris", 1))
	require.NoError(t, m.SetCurrent("tetris", 2))

	number, dir, err := m.Current("tetris")
	require.NoError(t, err)
	assert.Equal(t, 2, number)

	content, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	// Swapping the pointer leaves the old release on disk
	assert.NoError(t, m.Verify("tetris", 1))
}

func TestSetCurrentMissingArtifacts(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.SetCurrent("tetris", 7)
	var missing *ArtifactMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 7, missing.Number)
}

func TestCurrentWithoutPointer(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.Current("tetris")
	assert.ErrorIs(t, err, ErrNoCurrent)
}

func TestVerify(t *testing.T) {
	m, paths := newTestManager(t)

	err := m.Verify("tetris", 1)
	var missing *ArtifactMissingError
	assert.True(t, errors.As(err, &missing))

	_, err = m.Publish("tetris", 1, buildOutput(t, "v1"))
	require.NoError(t, err)
	assert.NoError(t, m.Verify("tetris", 1))

	// An empty release dir counts as missing
	require.NoError(t, os.MkdirAll(paths.ReleaseDir("tetris", 2), 0o755))
	err = m.Verify("tetris", 2)
	assert.True(t, errors.As(err, &missing))
}

func TestList(t *testing.T) {
	m, _ := newTestManager(t)

	numbers, err := m.List("tetris")
	require.NoError(t, err)
	assert.Empty(t, numbers)

	for n := 1; n <= 3; n++ {
		_, err := m.Publish("tetris", n, buildOutput(t, "v"))
		require.NoError(t, err)
	}

	numbers, err = m.List("tetris")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, numbers)
}

func TestPrune(t *testing.T) {
	m, _ := newTestManager(t)

	for n := 1; n <= 4; n++ {
		_, err := m.Publish("tetris", n, buildOutput(t, "v"))
		require.NoError(t, err)
	}

	removed, err := m.Prune("tetris", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, removed)

	numbers, err := m.List("tetris")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, numbers)
}

func TestPruneKeepsCurrentOutsideWindow(t *testing.T) {
	m, _ := newTestManager(t)

	for n := 1; n <= 3; n++ {
		_, err := m.Publish("tetris", n, buildOutput(t, "v"))
		require.NoError(t, err)
	}

	// Current sits outside the keep window after a rollback.
	removed, err := m.Prune("tetris", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, removed)

	numbers, err := m.List("tetris")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, numbers)
}

func TestPruneSweepsStagingDirs(t *testing.T) {
	m, paths := newTestManager(t)

	_, err := m.Publish("tetris", 1, buildOutput(t, "v"))
	require.NoError(t, err)

	orphan := filepath.Join(paths.ReleasesDir("tetris"), stagePrefix+"deadbeef")
	require.NoError(t, os.MkdirAll(orphan, 0o755))

	_, err = m.Prune("tetris", 5, 1)
	require.NoError(t, err)

	_, statErr := os.Stat(orphan)
	assert.True(t, os.IsNotExist(statErr), "orphaned staging dir should be swept")
}

func TestPruneNoReleases(t *testing.T) {
	m, _ := newTestManager(t)

	removed, err := m.Prune("ghost", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
