package consistency

import (
	"fmt"

	"github.com/zen-systems/nodeflow/pkg/llm"
)

// Config holds the sampling parameters.
type Config struct {
	Samples             int     `yaml:"samples" json:"samples"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	// MaxParallel caps in-flight generations. Zero means unbounded.
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
}

// DefaultConfig returns five samples at a 0.8 threshold.
func DefaultConfig() Config {
	return Config{Samples: 5, SimilarityThreshold: 0.8}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Samples < 0 {
		return fmt.Errorf("samples must be >= 0, got %d", c.Samples)
	}
	if !(c.SimilarityThreshold >= 0 && c.SimilarityThreshold <= 1) {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", c.SimilarityThreshold)
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel)
	}
	return nil
}

// NodeConfig is the self-consistency node configuration: the sampling
// parameters alongside the LLM configuration used for every sample.
type NodeConfig struct {
	LLM      llm.Config `yaml:",inline" json:"llm"`
	Sampling Config     `yaml:",inline" json:"sampling"`
}

// DefaultNodeConfig returns the LLM and sampling defaults combined.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{LLM: llm.DefaultConfig(), Sampling: DefaultConfig()}
}
