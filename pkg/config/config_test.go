package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestConfigFileValuesAndEnvPrecedence(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, DirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte(`api_keys:
  anthropic: file-ant
  openai: file-openai
default:
  adapter: openai
  model: gpt-4o-mini
retry:
  max_retries: 1
pricing:
  openai:
    default:
      prompt_per_1k: 0.5
log_level: debug
`)
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("NODEFLOW_LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-ant" {
		t.Errorf("env should override file key, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "file-openai" {
		t.Errorf("file key should be used when env is empty, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.Default != (RouteTarget{Adapter: "openai", Model: "gpt-4o-mini"}) {
		t.Errorf("unexpected default target %+v", cfg.Default)
	}
	if cfg.Retry.MaxRetries != 1 || cfg.Retry.BaseBackoffMs != 200 || cfg.Retry.MaxBackoffMs != 2000 {
		t.Errorf("unexpected retry config %+v", cfg.Retry)
	}
	if p, ok := cfg.Pricing.Lookup("openai", "gpt-4o"); !ok || p.PromptPer1K != 0.5 {
		t.Errorf("expected adapter default pricing, got %+v ok=%v", p, ok)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.LogLevel)
	}
	if !cfg.HasAdapter("anthropic") || cfg.HasAdapter("google") || !cfg.HasAdapter("mock") {
		t.Errorf("HasAdapter mismatch")
	}
}

func TestConfigDefaultsWithoutFile(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	t.Setenv("NODEFLOW_LOG_LEVEL", "WARN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retry.MaxRetries != 0 {
		t.Errorf("generation calls should be one-shot by default, got %d retries", cfg.Retry.MaxRetries)
	}
	if cfg.Default.Adapter != "anthropic" {
		t.Errorf("unexpected default adapter %q", cfg.Default.Adapter)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected env log level lower-cased, got %q", cfg.LogLevel)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_keys: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
