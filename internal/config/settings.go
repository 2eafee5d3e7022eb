package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

// Source records where a setting's value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

// Settings is the loaded configuration plus a section/key accessor over it.
type Settings struct {
	root    string
	cfg     *Config
	tree    map[string]map[string]any
	sources map[string]Source
}

// Load reads <root>/config/config.yaml over the defaults, applies environment
// overrides and validates the result. Call LoadDotEnv first so .env values
// take part in the overrides.
func Load(root string) (*Settings, error) {
	path := ConfigPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.New(perrors.ErrCodeConfigNotFound, path+" not found", err).
				WithSuggestion("run 'pubrag init' to create a workspace")
		}
		return nil, perrors.ConfigError("failed to read "+path, err)
	}
	return parse(root, data)
}

// FromConfig wraps an already built Config, treating every value as a default.
func FromConfig(root string, cfg *Config) (*Settings, error) {
	s := &Settings{root: root, cfg: cfg, sources: map[string]Source{}}
	if err := s.buildTree(); err != nil {
		return nil, err
	}
	return s, nil
}

func parse(root string, data []byte) (*Settings, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, perrors.ConfigError("failed to parse "+ConfigPath(root), err)
	}

	s := &Settings{root: root, cfg: cfg, sources: map[string]Source{}}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, perrors.ConfigError("config sections must be mappings", err)
	}
	for section, keys := range raw {
		for key, v := range keys {
			if v != nil {
				s.sources[section+"."+key] = SourceFile
			}
		}
	}

	for _, name := range cfg.applyEnvOverrides() {
		s.sources[name] = SourceEnv
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.buildTree(); err != nil {
		return nil, err
	}
	return s, nil
}

// buildTree flattens the typed config into section/key maps for Get.
func (s *Settings) buildTree() error {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	s.tree = map[string]map[string]any{}
	if err := yaml.Unmarshal(data, &s.tree); err != nil {
		return fmt.Errorf("failed to index config: %w", err)
	}
	return nil
}

// Root returns the workspace root the settings were loaded from.
func (s *Settings) Root() string { return s.root }

// Config returns the typed configuration.
func (s *Settings) Config() *Config { return s.cfg }

// Get returns the effective value of section.key.
func (s *Settings) Get(section, key string) (any, bool) {
	keys, ok := s.tree[section]
	if !ok {
		return nil, false
	}
	v, ok := keys[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// GetString returns section.key formatted as a string, or "".
func (s *Settings) GetString(section, key string) string {
	v, ok := s.Get(section, key)
	if !ok {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// GetInt returns section.key as an int, or fallback when absent or not numeric.
func (s *Settings) GetInt(section, key string, fallback int) int {
	v, ok := s.Get(section, key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return fallback
}

// Source reports where section.key came from.
func (s *Settings) Source(section, key string) Source {
	if src, ok := s.sources[section+"."+key]; ok {
		return src
	}
	return SourceDefault
}

// Defined reports whether section.key was set by the file or the environment.
func (s *Settings) Defined(section, key string) bool {
	return s.Source(section, key) != SourceDefault
}

// Sections lists the top-level section names.
func (s *Settings) Sections() []string {
	out := make([]string, 0, len(s.tree))
	for name := range s.tree {
		out = append(out, name)
	}
	return out
}
