package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Org struct {
		ID string `yaml:"id"`
	} `yaml:"org"`
	Audit struct {
		// UnresolvedEditor must be "reject" (fail the edit) or "skip"
		// (persist without an audit entry and flag it). There is no
		// default; Validate enforces a choice.
		UnresolvedEditor string `yaml:"unresolved_editor"`
	} `yaml:"audit"`
	Limits struct {
		IdentityCacheSize  int `yaml:"identity_cache_size"`
		LookupTimeoutMS    int `yaml:"lookup_timeout_ms"`
		MaxPolygonVertices int `yaml:"max_polygon_vertices"`
	} `yaml:"limits"`
	Defaults struct {
		TaskVisibility string `yaml:"task_visibility"`
	} `yaml:"defaults"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	switch c.Audit.UnresolvedEditor {
	case "reject", "skip":
	case "":
		return fmt.Errorf("config.audit.unresolved_editor is required (reject or skip)")
	default:
		return fmt.Errorf("config.audit.unresolved_editor must be reject or skip, got %q", c.Audit.UnresolvedEditor)
	}
	if c.Limits.IdentityCacheSize < 0 {
		return fmt.Errorf("config.limits.identity_cache_size must not be negative")
	}
	if c.Limits.LookupTimeoutMS < 0 {
		return fmt.Errorf("config.limits.lookup_timeout_ms must not be negative")
	}
	if c.Limits.MaxPolygonVertices < 0 {
		return fmt.Errorf("config.limits.max_polygon_vertices must not be negative")
	}
	switch c.Defaults.TaskVisibility {
	case "", "org", "assignees", "groups", "assignees_groups", "admins":
	default:
		return fmt.Errorf("config.defaults.task_visibility %q is not a visibility mode", c.Defaults.TaskVisibility)
	}
	return nil
}

// LookupTimeout returns the identity fallback lookup bound.
func (c *Config) LookupTimeout() time.Duration {
	if c.Limits.LookupTimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Limits.LookupTimeoutMS) * time.Millisecond
}

// MaxPolygonVertices bounds imported polygon rings.
func (c *Config) MaxPolygonVertices() int {
	if c.Limits.MaxPolygonVertices <= 0 {
		return 1000
	}
	return c.Limits.MaxPolygonVertices
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(workspace, orgID string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(orgID), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	cfg.Org.ID = orgID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

const defaultTemplate = `org:
  id: %s

audit:
  # reject: an edit whose editor identity cannot be resolved fails.
  # skip: the edit is persisted without an audit entry and the response
  # carries audit_skipped=true.
  unresolved_editor: reject

limits:
  identity_cache_size: 1024
  lookup_timeout_ms: 2000
  max_polygon_vertices: 1000

defaults:
  task_visibility: org
`
