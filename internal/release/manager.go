package release

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/rs/zerolog"

	"github.com/chaoticbest/vibehub/internal/hub"
	"github.com/chaoticbest/vibehub/internal/manifest"
)

// ErrNoCurrent is returned when an app has no current pointer yet.
var ErrNoCurrent = errors.New("no current release")

// ArtifactMissingError reports a release whose artifacts are no longer
// on disk, usually because they were pruned.
type ArtifactMissingError struct {
	Slug   string
	Number int
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifacts for release %d of %s are missing", e.Number, e.Slug)
}

// stagePrefix marks in-progress release dirs. A release becomes visible
// under its number only by the final rename, so readers never see a
// partially copied tree.
const stagePrefix = ".stage-"

// ignoredArtifacts are never copied into a release.
var ignoredArtifacts = map[string]struct{}{
	".git":            {},
	".github":         {},
	"node_modules":    {},
	".DS_Store":       {},
	manifest.Filename: {},
}

// Manager owns the release area and the current pointers under the hub.
type Manager struct {
	paths  hub.Paths
	logger zerolog.Logger
}

// NewManager creates a release manager for the hub at paths.
func NewManager(paths hub.Paths, logger zerolog.Logger) *Manager {
	return &Manager{
		paths:  paths,
		logger: logger.With().Str("component", "release").Logger(),
	}
}

// Publish copies the build output into the release area as number for
// slug. The copy lands in a staging dir first and is renamed into place,
// so the numbered dir is either fully present or absent.
func (m *Manager) Publish(slug string, number int, outputDir string) (string, error) {
	releasesDir := m.paths.ReleasesDir(slug)
	if err := os.MkdirAll(releasesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create releases dir for %s: %w", slug, err)
	}

	finalDir := m.paths.ReleaseDir(slug, number)
	if _, err := os.Stat(finalDir); err == nil {
		return "", fmt.Errorf("release %d for %s already published", number, slug)
	}

	stageDir := filepath.Join(releasesDir, stagePrefix+uuid.New().String())

	opts := copy.Options{
		Skip: func(info os.FileInfo, src, dest string) (bool, error) {
			_, skip := ignoredArtifacts[filepath.Base(src)]
			return skip, nil
		},
		OnSymlink: func(src string) copy.SymlinkAction {
			m.logger.Warn().Str("slug", slug).Str("path", src).Msg("Ignoring symlink in build output")
			return copy.Skip
		},
	}

	if err := copy.Copy(outputDir, stageDir, opts); err != nil {
		os.RemoveAll(stageDir)
		return "", fmt.Errorf("failed to stage release %d for %s: %w", number, slug, err)
	}

	if err := os.Rename(stageDir, finalDir); err != nil {
		os.RemoveAll(stageDir)
		return "", fmt.Errorf("failed to publish release %d for %s: %w", number, slug, err)
	}

	m.logger.Info().
		Str("slug", slug).
		Int("release", number).
		Str("dir", finalDir).
		Msg("Release published")

	return finalDir, nil
}

// SetCurrent atomically points the app's current pointer at release
// number. The symlink is created under a temporary name and renamed over
// the pointer, so readers always see either the old or the new release.
func (m *Manager) SetCurrent(slug string, number int) error {
	if err := m.Verify(slug, number); err != nil {
		return err
	}

	staticDir := m.paths.StaticDir()
	if err := os.MkdirAll(staticDir, 0o755); err != nil {
		return fmt.Errorf("failed to create static dir: %w", err)
	}

	// Relative target keeps the hub relocatable.
	target := filepath.Join("..", "releases", slug, strconv.Itoa(number))
	tmpLink := filepath.Join(staticDir, fmt.Sprintf(".%s-%s.tmp", slug, uuid.New().String()[:8]))

	if err := os.Symlink(target, tmpLink); err != nil {
		return fmt.Errorf("failed to create current pointer for %s: %w", slug, err)
	}

	if err := os.Rename(tmpLink, m.paths.CurrentLink(slug)); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("failed to swap current pointer for %s: %w", slug, err)
	}

	m.logger.Info().
		Str("slug", slug).
		Int("release", number).
		Msg("Current pointer updated")

	return nil
}

// Current resolves the app's current pointer to its release number and
// artifact directory.
func (m *Manager) Current(slug string) (int, string, error) {
	link := m.paths.CurrentLink(slug)

	target, err := os.Readlink(link)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", fmt.Errorf("%w: %s", ErrNoCurrent, slug)
		}
		return 0, "", fmt.Errorf("failed to read current pointer for %s: %w", slug, err)
	}

	number, err := strconv.Atoi(filepath.Base(target))
	if err != nil {
		return 0, "", fmt.Errorf("current pointer for %s does not name a release: %s", slug, target)
	}

	dir := target
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.paths.StaticDir(), target)
	}

	return number, filepath.Clean(dir), nil
}

// Verify checks that the artifacts for a release are present on disk.
func (m *Manager) Verify(slug string, number int) error {
	dir := m.paths.ReleaseDir(slug, number)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &ArtifactMissingError{Slug: slug, Number: number}
		}
		return fmt.Errorf("failed to verify release %d for %s: %w", number, slug, err)
	}
	if len(entries) == 0 {
		return &ArtifactMissingError{Slug: slug, Number: number}
	}
	return nil
}

// List returns the release numbers present on disk for slug, ascending.
func (m *Manager) List(slug string) ([]int, error) {
	entries, err := os.ReadDir(m.paths.ReleasesDir(slug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list releases for %s: %w", slug, err)
	}

	var numbers []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		number, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// Prune removes release artifacts beyond the keep newest, never touching
// the current release. Orphaned staging dirs from interrupted publishes
// are swept as well. It returns the numbers removed.
func (m *Manager) Prune(slug string, keep, current int) ([]int, error) {
	releasesDir := m.paths.ReleasesDir(slug)

	entries, err := os.ReadDir(releasesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list releases for %s: %w", slug, err)
	}

	var numbers []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), stagePrefix) {
			os.RemoveAll(filepath.Join(releasesDir, entry.Name()))
			continue
		}
		number, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		numbers = append(numbers, number)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))

	var removed []int
	for i, number := range numbers {
		if i < keep || number == current {
			continue
		}
		if err := os.RemoveAll(m.paths.ReleaseDir(slug, number)); err != nil {
			return removed, fmt.Errorf("failed to prune release %d for %s: %w", number, slug, err)
		}
		m.logger.Info().Str("slug", slug).Int("release", number).Msg("Release pruned")
		removed = append(removed, number)
	}

	return removed, nil
}
