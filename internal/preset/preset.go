// Package preset loads named pattern bundles from a YAML file so that
// common retrievals ("docs", "go-source") can be invoked by name
// instead of repeating pattern lists.
package preset

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"repofetch/internal/errors"
)

// Preset is a reusable bundle of include patterns and extra exclusions.
type Preset struct {
	Description string   `yaml:"description,omitempty"`
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude,omitempty"`
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Builtin presets available without any configuration file.
var builtin = map[string]Preset{
	"docs": {
		Description: "Markdown and reStructuredText documentation",
		Include:     []string{"**/*.md", "*.md", "**/*.rst", "*.rst", "docs/**"},
	},
	"go-source": {
		Description: "Go sources without tests",
		Include:     []string{"**/*.go", "*.go", "go.mod"},
		Exclude:     []string{"**/*_test.go", "*_test.go", "vendor/**"},
	},
	"python-source": {
		Description: "Python sources without tests",
		Include:     []string{"**/*.py", "*.py", "pyproject.toml"},
		Exclude:     []string{"**/test_*.py", "test_*.py", "**/tests/**"},
	},
	"config": {
		Description: "Configuration files at any depth",
		Include: []string{
			"**/*.yaml", "*.yaml", "**/*.yml", "*.yml",
			"**/*.toml", "*.toml", "**/*.json", "*.json",
			"**/*.ini", "*.ini",
		},
	},
}

// Store holds the merged set of built-in and user-defined presets.
type Store struct {
	presets map[string]Preset
}

// Load reads path and merges its presets over the built-in set. A user
// preset with the same name as a built-in replaces it. An empty path or
// a missing file yields just the built-ins.
func Load(path string) (*Store, error) {
	merged := make(map[string]Preset, len(builtin))
	for name, p := range builtin {
		merged[name] = p
	}
	s := &Store{presets: merged}

	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(errors.ConfigInvalid, fmt.Sprintf("reading presets file %s", path), err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, fmt.Sprintf("parsing presets file %s", path), err)
	}
	for name, p := range file.Presets {
		if name == "" {
			return nil, errors.New(errors.ConfigInvalid, "preset with empty name")
		}
		if len(p.Include) == 0 {
			return nil, errors.Newf(errors.ConfigInvalid, "preset %q has no include patterns", name)
		}
		merged[name] = p
	}
	return s, nil
}

// Get returns the preset for name.
func (s *Store) Get(name string) (Preset, error) {
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, errors.Newf(errors.InvalidParameter, "unknown preset %q (available: %v)", name, s.Names())
	}
	return p, nil
}

// Names returns all preset names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
