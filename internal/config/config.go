package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"
)

// Configuration is the root of a triage-collector YAML config: the
// artifact list plus free-form global options the CLI layer passes
// through to the collection run.
type Configuration struct {
	Version       string            `yaml:"version"`
	Description   string            `yaml:"description,omitempty"`
	GlobalOptions map[string]string `yaml:"global_options,omitempty"`
	Artifacts     []Artifact        `yaml:"artifacts"`
}

// Artifact is the declarative description of one thing to collect.
type Artifact struct {
	Name            string            `yaml:"name"`
	ArtifactType    ArtifactType      `yaml:"artifact_type"`
	SourcePath      string            `yaml:"source_path"`
	DestinationName string            `yaml:"destination_name,omitempty"`
	Required        bool              `yaml:"required"`
	Description     string            `yaml:"description,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
	Regex           *RegexConfig      `yaml:"regex,omitempty"`
}

// RegexConfig controls C3's recursive directory walk for one artifact.
type RegexConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Recursive      bool   `yaml:"recursive"`
	IncludePattern string `yaml:"include_pattern,omitempty"`
	ExcludePattern string `yaml:"exclude_pattern,omitempty"`
	MaxDepth       *int   `yaml:"max_depth,omitempty"`
}

// DefaultIncludePattern is applied when include_pattern is left empty.
const DefaultIncludePattern = ".*"

// ArtifactType is the tagged-variant artifact classification: a
// category (Generic, Windows, Linux, MacOS, VolatileData, Custom) plus,
// for OS-tagged and volatile-data categories, a variant name within
// that category. Generic variants and Custom serialize as a bare YAML
// string; OS-tagged and volatile-data variants serialize as a
// single-key map, e.g. `{Windows: MFT}`.
type ArtifactType struct {
	Category string
	Variant  string
}

var genericVariants = map[string]bool{
	"FileSystem": true,
	"Logs":       true,
	"UserData":   true,
	"SystemInfo": true,
	"Memory":     true,
	"Network":    true,
}

var categoryVariants = map[string]map[string]bool{
	"Windows": {
		"MFT": true, "Registry": true, "EventLog": true, "Prefetch": true,
		"USNJournal": true, "ShimCache": true, "AmCache": true,
	},
	"Linux": {
		"SysLogs": true, "Journal": true, "Proc": true, "Audit": true,
		"Cron": true, "Bash": true, "Apt": true, "Dpkg": true, "Yum": true,
		"Systemd": true,
	},
	"MacOS": {
		"UnifiedLogs": true, "Plist": true, "Spotlight": true, "FSEvents": true,
		"Quarantine": true, "KnowledgeC": true, "LaunchAgents": true,
		"LaunchDaemons": true,
	},
	"VolatileData": {
		"SystemInfo": true, "Processes": true, "NetworkConnections": true,
		"Memory": true, "Disks": true,
	},
}

// String renders the artifact type the way the original collector's
// Display impl does: "Category-Variant" for tagged variants, the bare
// variant name for Generic, and "Custom" for custom artifacts.
func (t ArtifactType) String() string {
	switch t.Category {
	case "Generic", "":
		if t.Variant == "" {
			return "Custom"
		}
		return t.Variant
	case "Custom":
		return "Custom"
	default:
		return t.Category + "-" + t.Variant
	}
}

// Validate checks that the category/variant pair is one of the
// recognized artifact types.
func (t ArtifactType) Validate() error {
	switch t.Category {
	case "Generic":
		if !genericVariants[t.Variant] {
			return fmt.Errorf("unknown generic artifact variant: %q", t.Variant)
		}
		return nil
	case "Custom":
		return nil
	case "Windows", "Linux", "MacOS", "VolatileData":
		if !categoryVariants[t.Category][t.Variant] {
			return fmt.Errorf("unknown %s artifact variant: %q", t.Category, t.Variant)
		}
		return nil
	default:
		return fmt.Errorf("unknown artifact category: %q", t.Category)
	}
}

// UnmarshalYAML accepts either a bare string (Generic variant or
// "Custom") or a single-key map (OS-tagged / volatile-data variant).
func (t *ArtifactType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var bare string
	if err := unmarshal(&bare); err == nil {
		if bare == "Custom" {
			t.Category = "Custom"
			t.Variant = ""
			return nil
		}
		t.Category = "Generic"
		t.Variant = bare
		return nil
	}

	var tagged map[string]string
	if err := unmarshal(&tagged); err != nil {
		return fmt.Errorf("artifact_type must be a string or a single-key map: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("artifact_type map must have exactly one key, got %d", len(tagged))
	}
	for category, variant := range tagged {
		t.Category = category
		t.Variant = variant
	}
	return nil
}

// MarshalYAML renders Generic/Custom as a bare string and everything
// else as a single-key map, mirroring the original serde encoding.
func (t ArtifactType) MarshalYAML() (interface{}, error) {
	switch t.Category {
	case "Generic", "":
		return t.Variant, nil
	case "Custom":
		return "Custom", nil
	default:
		return map[string]string{t.Category: t.Variant}, nil
	}
}

// NewDefault returns a minimal, structurally valid configuration
// suitable as a starting point for `init-config` (out of scope; this
// models what that out-of-scope CLI step is required to produce).
func NewDefault() *Configuration {
	return &Configuration{
		Version:     "1.0",
		Description: "default triage-collector configuration",
		GlobalOptions: map[string]string{
			"output_dir": "",
		},
		Artifacts: []Artifact{},
	}
}

// LoadFromFile loads and validates a configuration from a YAML file.
func LoadFromFile(filename string) (*Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Configuration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	return &c, nil
}

// SaveToFile marshals the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks structural invariants: non-empty version, unique
// artifact names, recognized artifact types, and (when a regex is
// configured) that both patterns compile. Applies the default include
// pattern in place when one is not given.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version must not be empty")
	}

	seen := make(map[string]bool, len(c.Artifacts))
	for i := range c.Artifacts {
		a := &c.Artifacts[i]

		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("artifact at index %d: name must not be empty", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate artifact name: %q", a.Name)
		}
		seen[a.Name] = true

		if err := a.ArtifactType.Validate(); err != nil {
			return fmt.Errorf("artifact %q: %w", a.Name, err)
		}

		if strings.TrimSpace(a.SourcePath) == "" {
			return fmt.Errorf("artifact %q: source_path must not be empty", a.Name)
		}

		if a.Regex != nil {
			if a.Regex.IncludePattern == "" {
				a.Regex.IncludePattern = DefaultIncludePattern
			}
			if _, err := regexp.Compile(a.Regex.IncludePattern); err != nil {
				return fmt.Errorf("artifact %q: invalid include_pattern: %w", a.Name, err)
			}
			if a.Regex.ExcludePattern != "" {
				if _, err := regexp.Compile(a.Regex.ExcludePattern); err != nil {
					return fmt.Errorf("artifact %q: invalid exclude_pattern: %w", a.Name, err)
				}
			}
			if a.Regex.MaxDepth != nil && *a.Regex.MaxDepth < 0 {
				return fmt.Errorf("artifact %q: max_depth must not be negative", a.Name)
			}
		}
	}

	return nil
}

// ForPlatform returns the subset of artifacts supported on the given
// OS (as reported by runtime.GOOS): Generic, Custom, and VolatileData
// artifacts pass everywhere; OS-tagged artifacts pass only when their
// category matches.
func (c *Configuration) ForPlatform(goos string) []Artifact {
	category := platformCategory(goos)

	filtered := make([]Artifact, 0, len(c.Artifacts))
	for _, a := range c.Artifacts {
		switch a.ArtifactType.Category {
		case "Generic", "Custom", "VolatileData":
			filtered = append(filtered, a)
		case category:
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func platformCategory(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "MacOS"
	default:
		return "Linux"
	}
}

// IsSpecial reports whether an artifact lacks a natural filesystem
// origin (MFT, USN journal) and so is laid out at `<fs>/<destination_name>`
// rather than `<fs>/<source_path>`.
func (a Artifact) IsSpecial() bool {
	return a.ArtifactType.Category == "Windows" &&
		(a.ArtifactType.Variant == "MFT" || a.ArtifactType.Variant == "USNJournal")
}
