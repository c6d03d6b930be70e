// Package manifest reads node manifests: a single node's type and its
// configuration, written in YAML or TOML.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/zen-systems/nodeflow/pkg/consistency"
	"github.com/zen-systems/nodeflow/pkg/llm"
	"github.com/zen-systems/nodeflow/pkg/youtube"
	"gopkg.in/yaml.v3"
)

// Manifest declares one node.
type Manifest struct {
	Name        string         `yaml:"name" toml:"name"`
	Type        string         `yaml:"type" toml:"type"`
	Description string         `yaml:"description,omitempty" toml:"description,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" toml:"config,omitempty"`
	// Input holds default input fields used when a run supplies none.
	Input map[string]any `yaml:"input,omitempty" toml:"input,omitempty"`
}

// Types lists the node types a manifest may declare.
func Types() []string {
	return []string{llm.Name, consistency.NodeName, youtube.NodeName}
}

// Load reads a manifest. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks required fields and decodes the config for the declared
// type, so unknown keys and out-of-range values are reported here.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}

	var err error
	switch m.Type {
	case "":
		return fmt.Errorf("node %s: type is required", m.Name)
	case llm.Name:
		_, err = m.LLMConfig()
	case consistency.NodeName:
		_, err = m.ConsistencyConfig()
	case youtube.NodeName:
		_, err = m.TranscriptConfig()
	default:
		return fmt.Errorf("node %s: unknown type %q (known: %s)", m.Name, m.Type, strings.Join(Types(), ", "))
	}
	return err
}

// LLMConfig decodes the config of an LLM node onto its defaults.
func (m *Manifest) LLMConfig() (llm.Config, error) {
	cfg := llm.DefaultConfig()
	if err := m.DecodeConfig(&cfg); err != nil {
		return llm.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return llm.Config{}, fmt.Errorf("node %s: %w", m.Name, err)
	}
	return cfg, nil
}

// ConsistencyConfig decodes the config of a self-consistency node onto its
// defaults.
func (m *Manifest) ConsistencyConfig() (consistency.NodeConfig, error) {
	cfg := consistency.DefaultNodeConfig()
	if err := m.DecodeConfig(&cfg); err != nil {
		return consistency.NodeConfig{}, err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return consistency.NodeConfig{}, fmt.Errorf("node %s: %w", m.Name, err)
	}
	if err := cfg.Sampling.Validate(); err != nil {
		return consistency.NodeConfig{}, fmt.Errorf("node %s: %w", m.Name, err)
	}
	return cfg, nil
}

// TranscriptConfig decodes the config of a transcript node onto its
// defaults. A declared output_schema replaces the default one.
func (m *Manifest) TranscriptConfig() (youtube.NodeConfig, error) {
	cfg := youtube.DefaultNodeConfig()
	if _, ok := m.Config["output_schema"]; ok {
		cfg.OutputSchema = nil
	}
	if err := m.DecodeConfig(&cfg); err != nil {
		return youtube.NodeConfig{}, err
	}
	if !cfg.FailurePolicy.Valid() {
		return youtube.NodeConfig{}, fmt.Errorf("node %s: unknown failure_policy %q", m.Name, cfg.FailurePolicy)
	}
	return cfg, nil
}

// DecodeConfig decodes the manifest config onto dst. Fields absent from the
// manifest keep the values already in dst; unknown keys are an error.
func (m *Manifest) DecodeConfig(dst any) error {
	if len(m.Config) == 0 {
		return nil
	}
	data, err := yaml.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("node %s: encode config: %w", m.Name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("node %s: config: %w", m.Name, err)
	}
	return nil
}
