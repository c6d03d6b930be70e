package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short names to concrete models and lists which models
// each provider serves.
//
// An alias value is either a bare model ("gpt-4o-mini") or an
// "adapter/model" pair ("anthropic/claude-sonnet-4-20250514"), in which case
// the alias also picks the adapter.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}

	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}

	return &aliases, nil
}

// LoadAliasesWithFallback loads ~/.nodeflow/models.yaml, then defaultPath,
// then the built-in defaults.
func LoadAliasesWithFallback(defaultPath string) (*ModelAliases, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, DirName, "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return LoadAliases(userPath)
		}
	}

	if defaultPath != "" {
		if _, err := os.Stat(defaultPath); err == nil {
			return LoadAliases(defaultPath)
		}
	}

	return DefaultAliases(), nil
}

// Resolve turns an adapter and a model-or-alias into a concrete target.
// An "adapter/model" alias overrides the adapter; unknown names pass through.
func (a *ModelAliases) Resolve(adapterName, modelOrAlias string) RouteTarget {
	target := RouteTarget{Adapter: adapterName, Model: modelOrAlias}
	if a == nil || a.Aliases == nil {
		return target
	}
	canonical, ok := a.Aliases[modelOrAlias]
	if !ok {
		return target
	}
	if provider, model, found := strings.Cut(canonical, "/"); found {
		return RouteTarget{Adapter: provider, Model: model}
	}
	target.Model = canonical
	if target.Adapter == "" {
		target.Adapter = a.ProviderForModel(canonical)
	}
	return target
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// Validate checks that the target's model is served by its adapter.
// Without provider information every target is accepted.
func (a *ModelAliases) Validate(target RouteTarget) error {
	if a == nil || len(a.Providers) == 0 || target.Adapter == "mock" {
		return nil
	}

	models, ok := a.Providers[target.Adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", target.Adapter)
	}
	if !slices.Contains(models, target.Model) {
		return fmt.Errorf("model %q not in %s provider list", target.Model, target.Adapter)
	}
	return nil
}

// ListAliases returns a copy of the aliases map.
func (a *ModelAliases) ListAliases() map[string]string {
	if a == nil || a.Aliases == nil {
		return make(map[string]string)
	}
	return maps.Clone(a.Aliases)
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(a.Providers))
}

// ProviderModels returns the models for a given provider.
func (a *ModelAliases) ProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// ProviderForModel returns the provider serving a canonical model, or "".
// Providers are searched in sorted order so the answer is stable.
func (a *ModelAliases) ProviderForModel(model string) string {
	for _, provider := range a.ListProviders() {
		if slices.Contains(a.Providers[provider], model) {
			return provider
		}
	}
	return ""
}

// DefaultAliases returns the built-in alias set.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"fast":     "openai/gpt-4o-mini",
			"balanced": "openai/gpt-4o",
			"quality":  "anthropic/claude-sonnet-4-20250514",
			"deep":     "anthropic/claude-opus-4-20250514",
			"flash":    "google/gemini-2.5-flash",
			"research": "google/gemini-2.5-pro",
			"cheap":    "deepseek/deepseek-chat",
			"reason":   "deepseek/deepseek-reasoner",
		},
		Providers: map[string][]string{
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"},
			"google":    {"gemini-2.5-flash", "gemini-2.5-pro"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
		},
	}
}
