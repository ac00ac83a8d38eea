package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Filename is the app manifest looked up at the root of a checkout.
const Filename = "vibe.yaml"

// AppType describes how an app is built and served.
type AppType string

const (
	TypeStatic AppType = "static"
	TypeSPA    AppType = "spa"
)

// Manifest is the optional per-repository deployment manifest. Every field
// has a sensible default, so repositories without a vibe.yaml deploy as
// plain static sites.
type Manifest struct {
	ID    string                 `yaml:"id"`
	Name  string                 `yaml:"name"`
	Type  AppType                `yaml:"type"`
	Build BuildSpec              `yaml:"build"`
	Meta  map[string]interface{} `yaml:"meta"`
}

// BuildSpec configures the optional build step.
type BuildSpec struct {
	// Install is run before Command, typically a dependency install.
	Install string `yaml:"install"`
	// Command produces the site; empty means no build step.
	Command string `yaml:"command"`
	// OutputDir is the build output relative to the repository root.
	// Empty means guess (dist, build, public, then the root itself).
	OutputDir string `yaml:"output_dir"`
	// BasePathEnv names an environment variable exported to the build as
	// "/app/<slug>/" so SPA routers resolve under the hub path.
	BasePathEnv string `yaml:"base_path_env"`
}

// UnsupportedTypeError is returned for app types the hub cannot serve.
type UnsupportedTypeError struct {
	Type AppType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported app type %q: only static and spa apps are supported", string(e.Type))
}

// Load reads the manifest from dir. A missing manifest is not an error: the
// zero manifest (a plain static app) is returned instead.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		if os.IsNotExist(err) {
			m := &Manifest{}
			m.applyDefaults()
			return m, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", Filename, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", Filename, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	m.Type = AppType(strings.ToLower(strings.TrimSpace(string(m.Type))))
	if m.Type == "" {
		m.Type = TypeStatic
	}
}

func (m *Manifest) validate() error {
	switch m.Type {
	case TypeStatic, TypeSPA:
		return nil
	default:
		return &UnsupportedTypeError{Type: m.Type}
	}
}

// HasBuildCommand reports whether the manifest requests an explicit build.
func (m *Manifest) HasBuildCommand() bool {
	return strings.TrimSpace(m.Build.Command) != ""
}

// MetaJSON serializes the free-form metadata for the registry. An empty
// or unserializable map yields "".
func (m *Manifest) MetaJSON() string {
	if len(m.Meta) == 0 {
		return ""
	}
	data, err := json.Marshal(m.Meta)
	if err != nil {
		return ""
	}
	return string(data)
}

// DisplayName returns the human name for the app, falling back through the
// manifest name and id.
func (m *Manifest) DisplayName(fallback string) string {
	if m.Name != "" {
		return m.Name
	}
	if m.ID != "" {
		return m.ID
	}
	return fallback
}
