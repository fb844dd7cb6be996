package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  port: 9000
router:
  fallback_timeout: 3s
handlers:
  - tag: sleep
    label: Morpheus
    keywords: [sleep, insomnia]
    reply: Try a consistent bedtime.
bridge:
  enabled: true
  url: wss://peer.example/ws/{id}
  max_attempts: 3
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Router.FallbackTimeout != 3*time.Second {
		t.Errorf("Router.FallbackTimeout = %v, want 3s", cfg.Router.FallbackTimeout)
	}
	if len(cfg.Handlers) != 1 || cfg.Handlers[0].Label != "Morpheus" || len(cfg.Handlers[0].Keywords) != 2 {
		t.Errorf("unexpected handlers: %+v", cfg.Handlers)
	}
	if cfg.Bridge.URL != "wss://peer.example/ws/{id}" || cfg.Bridge.MaxAttempts != 3 {
		t.Errorf("unexpected bridge config: %+v", cfg.Bridge)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret123")

	cfg, err := Load(writeTempFile(t, "llm:\n  api_key: ${TEST_GEMINI_KEY}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "secret123" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAndValidateDefaults(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Router.DefaultHandler != "general" {
		t.Errorf("Router.DefaultHandler = %q, want general", cfg.Router.DefaultHandler)
	}
	if cfg.Router.ContextMessages != 5 {
		t.Errorf("Router.ContextMessages = %d, want 5", cfg.Router.ContextMessages)
	}
	if len(cfg.Handlers) != 3 {
		t.Errorf("expected 3 default handlers, got %d", len(cfg.Handlers))
	}
	if cfg.Bridge.Enabled {
		t.Error("bridge should be disabled without a URL")
	}
	if cfg.Bridge.BackoffBase != 2*time.Second || cfg.Bridge.BackoffMax != 30*time.Second || cfg.Bridge.MaxAttempts != 5 {
		t.Errorf("unexpected backoff defaults: %+v", cfg.Bridge)
	}
	if !cfg.Hub.TypingEnabled() {
		t.Error("typing should default to enabled")
	}
	if cfg.Transcript.Driver != "sqlite" || cfg.Transcript.DSN != DefaultTranscriptPath {
		t.Errorf("unexpected transcript defaults: %+v", cfg.Transcript)
	}
}

func TestLoadAndValidateEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8123")
	t.Setenv("EXTERNAL_WS_URL", "wss://peer.example/ws")
	t.Setenv("EXTERNAL_WS_USER_ID", "bridge-1")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadAndValidate(writeTempFile(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Server.Port != 8123 {
		t.Errorf("Server.Port = %d, want 8123", cfg.Server.Port)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.URL != "wss://peer.example/ws" || cfg.Bridge.SessionID != "bridge-1" {
		t.Errorf("unexpected bridge config: %+v", cfg.Bridge)
	}
	if cfg.LLM.APIKey != "key" {
		t.Errorf("LLM.APIKey = %q, want key", cfg.LLM.APIKey)
	}
}

func TestLoadAndValidateBadPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := LoadAndValidate(""); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"confidence", func(c *Config) { c.Router.FallbackConfidence = 1.5 }, "fallback_confidence"},
		{"empty tag", func(c *Config) { c.Handlers[0].Tag = "" }, "tag is required"},
		{"duplicate tag", func(c *Config) { c.Handlers[1].Tag = c.Handlers[0].Tag }, "duplicated"},
		{"handler body", func(c *Config) { c.Handlers[0].SystemPrompt, c.Handlers[0].Reply = "", "" }, "system_prompt or reply"},
		{"default handler", func(c *Config) { c.Router.DefaultHandler = "missing" }, "default_handler"},
		{"bridge url", func(c *Config) { c.Bridge.Enabled = true }, "bridge.url is required"},
		{"bridge scheme", func(c *Config) { c.Bridge.Enabled, c.Bridge.URL = true, "http://peer" }, "ws:// or wss://"},
		{"backoff", func(c *Config) {
			c.Bridge.Enabled, c.Bridge.URL = true, "ws://peer"
			c.Bridge.BackoffBase = time.Minute
		}, "backoff_base"},
		{"transcript driver", func(c *Config) { c.Transcript.Driver = "mongo" }, "transcript.driver"},
		{"transcript dsn", func(c *Config) { c.Transcript.Driver, c.Transcript.DSN = "postgres", "" }, "transcript.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestKeywordBoostZeroIsKept(t *testing.T) {
	path := writeTempFile(t, "router:\n  keyword_increment: 0\n  keyword_cap: 0\n")
	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Router.KeywordIncrement == nil || *cfg.Router.KeywordIncrement != 0 {
		t.Errorf("Router.KeywordIncrement = %v, want explicit 0", cfg.Router.KeywordIncrement)
	}
	if cfg.Router.KeywordCap == nil || *cfg.Router.KeywordCap != 0 {
		t.Errorf("Router.KeywordCap = %v, want explicit 0", cfg.Router.KeywordCap)
	}

	cfg, err = LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Router.KeywordIncrement == nil || *cfg.Router.KeywordIncrement != 0.1 {
		t.Errorf("default Router.KeywordIncrement = %v, want 0.1", cfg.Router.KeywordIncrement)
	}
	if cfg.Router.KeywordCap == nil || *cfg.Router.KeywordCap != 0.2 {
		t.Errorf("default Router.KeywordCap = %v, want 0.2", cfg.Router.KeywordCap)
	}

	_, err = LoadAndValidate(writeTempFile(t, "router:\n  keyword_cap: -1\n"))
	if err == nil || !strings.Contains(err.Error(), "keyword_cap") {
		t.Errorf("expected keyword_cap validation error, got %v", err)
	}
}
