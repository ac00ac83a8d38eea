package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Paths derives every filesystem location the hub uses from a single root.
// Layout under the root:
//
//	registry/hub.db       durable app registry (sqlite default)
//	releases/<slug>/<n>/  immutable numbered release artifacts
//	static/<slug>         current pointer: symlink to the live release dir,
//	                      the path the reverse proxy serves
//	scratch/              attempt-scoped checkout workspaces
//	locks/<slug>.lock     per-app deploy locks
type Paths struct {
	Root string
}

// NewPaths returns the layout rooted at root.
func NewPaths(root string) Paths {
	return Paths{Root: filepath.Clean(root)}
}

// RegistryDir is the directory holding the registry database.
func (p Paths) RegistryDir() string {
	return filepath.Join(p.Root, "registry")
}

// RegistryDB is the default sqlite registry location.
func (p Paths) RegistryDB() string {
	return filepath.Join(p.RegistryDir(), "hub.db")
}

// ScratchDir holds per-attempt checkout workspaces.
func (p Paths) ScratchDir() string {
	return filepath.Join(p.Root, "scratch")
}

// LocksDir holds per-app deploy lock files.
func (p Paths) LocksDir() string {
	return filepath.Join(p.Root, "locks")
}

// LockFile is the deploy lock for one app.
func (p Paths) LockFile(slug string) string {
	return filepath.Join(p.LocksDir(), slug+".lock")
}

// ReleasesDir is the release tree for one app.
func (p Paths) ReleasesDir(slug string) string {
	return filepath.Join(p.Root, "releases", slug)
}

// ReleaseDir is one numbered, immutable release of an app.
func (p Paths) ReleaseDir(slug string, number int) string {
	return filepath.Join(p.ReleasesDir(slug), strconv.Itoa(number))
}

// StaticDir holds the per-app current pointers.
func (p Paths) StaticDir() string {
	return filepath.Join(p.Root, "static")
}

// CurrentLink is the atomic current pointer for one app.
func (p Paths) CurrentLink(slug string) string {
	return filepath.Join(p.StaticDir(), slug)
}

// EnsureLayout creates the top-level hub directories.
func (p Paths) EnsureLayout() error {
	for _, dir := range []string{
		p.Root,
		p.RegistryDir(),
		p.ScratchDir(),
		p.LocksDir(),
		filepath.Join(p.Root, "releases"),
		p.StaticDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create hub directory %s: %w", dir, err)
		}
	}
	return nil
}
