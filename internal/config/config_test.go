package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if !cfg.Sources.Reddit.Enabled || len(cfg.Sources.Reddit.Communities) == 0 {
		t.Error("expected reddit communities to be configured")
	}
	if cfg.Sources.NewsAPI.APIKeyEnv != "NEWSAPI_KEY" {
		t.Errorf("expected api_key_env 'NEWSAPI_KEY', got %q", cfg.Sources.NewsAPI.APIKeyEnv)
	}
	if cfg.Aggregation.MinPerCategory != 3 {
		t.Errorf("expected min_per_category 3, got %d", cfg.Aggregation.MinPerCategory)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if len(cfg.Locale.Neighborhoods) == 0 {
		t.Error("expected default neighborhoods to survive a config without the list")
	}
	if len(cfg.Sources.NewsAPI.Queries) != 4 {
		t.Errorf("expected one backup query per category, got %d", len(cfg.Sources.NewsAPI.Queries))
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
sources:
  feeds:
    - url: https://example.com/rss
      category: politics
      enabled: false
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Sources.Feeds[0].IsEnabled() {
		t.Error("expected feed to be disabled")
	}
	if Affinity(cfg.Sources.Feeds[0].Category) != article.Politics {
		t.Errorf("expected politics affinity, got %q", cfg.Sources.Feeds[0].Category)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Sources.HackerNews.BatchSize != 20 {
		t.Errorf("expected default batch size 20, got %d", cfg.Sources.HackerNews.BatchSize)
	}
	if cfg.RedditDelay() != 2*time.Second {
		t.Errorf("expected 2s reddit delay, got %v", cfg.RedditDelay())
	}
	if cfg.Sources.NewsAPI.SafetyMargin != 5 {
		t.Errorf("expected safety margin 5, got %d", cfg.Sources.NewsAPI.SafetyMargin)
	}
}

func TestFeedEnabledByDefault(t *testing.T) {
	if !(Feed{URL: "https://x.com/rss"}).IsEnabled() {
		t.Error("feeds should default to enabled")
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"unknown category": "sources:\n  feeds:\n    - url: https://x.com/rss\n      category: sports\n",
		"missing url":      "sources:\n  feeds:\n    - name: nothing\n",
		"unknown parser":   "sources:\n  feeds:\n    - url: https://x.com/rss\n      parser: fancy\n",
		"bad delay":        "sources:\n  reddit:\n    delay: soon\n",
		"bad query key":    "sources:\n  newsapi:\n    queries:\n      weather: rain\n",
		"bad timezone":     "locale:\n  timezone: Mars/Olympus\n",
		"bad yaml":         "sources: [",
	}
	for name, data := range tests {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAffinity(t *testing.T) {
	if Affinity("") != "" || Affinity("auto") != "" {
		t.Error("empty and auto should mean infer")
	}
	if Affinity("Tech") != article.Tech {
		t.Error("expected tech")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CITYPULSE_TEST_KEY", "  abc123 ")
	n := NewsAPIConfig{APIKeyEnv: "CITYPULSE_TEST_KEY"}
	if n.APIKey() != "abc123" {
		t.Errorf("expected trimmed key, got %q", n.APIKey())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestResolveConfigPathNothingFound(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	// xdg caches paths at init; only assert when the cached dir is empty too.
	if _, err := os.Stat(filepath.Join(ConfigDir(), "config.yaml")); err == nil {
		t.Skip("a real user config exists")
	}
	_, err := ResolveConfigPath("")
	if !errors.Is(err, ErrNoConfig) {
		t.Errorf("expected ErrNoConfig, got %v", err)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

func TestDefaultHelpers(t *testing.T) {
	cfg := Default()
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("expected 15s timeout, got %v", cfg.RequestTimeout())
	}
	if cfg.Location().String() != "America/Los_Angeles" {
		t.Errorf("expected LA time zone, got %s", cfg.Location())
	}
	if cfg.Debug() {
		t.Error("default log level should not be debug")
	}
}
