package slug

import (
	"path"
	"regexp"
	"strings"
)

var (
	invalid  = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRuns = regexp.MustCompile(`-{2,}`)
)

// Make normalizes an arbitrary string into a URL-safe app slug: lowercase,
// non-alphanumeric runs collapsed to single dashes, no leading or trailing
// dash. An input that normalizes to nothing yields "app".
func Make(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = invalid.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "app"
	}
	return s
}

// NormalizeRepoURL strips a trailing slash so equivalent repository URLs
// map to the same app.
func NormalizeRepoURL(repoURL string) string {
	return strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
}

// FromRepoURL derives the app slug from the last path element of a git
// repository URL, minus any .git suffix. Works for both https and scp-style
// remotes since both use "/" before the repository name.
func FromRepoURL(repoURL string) string {
	base := path.Base(NormalizeRepoURL(repoURL))
	base = strings.TrimSuffix(base, ".git")
	return Make(base)
}
