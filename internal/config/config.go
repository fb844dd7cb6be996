// Package config loads the hub configuration from YAML with ${VAR}
// expansion, defaults and environment overrides.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Hub        HubConfig        `yaml:"hub"`
	Router     RouterConfig     `yaml:"router"`
	Handlers   []HandlerConfig  `yaml:"handlers"`
	LLM        LLMConfig        `yaml:"llm"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// HubConfig holds session pipeline settings.
type HubConfig struct {
	HistoryWindow  int           `yaml:"history_window"`
	InboxSize      int           `yaml:"inbox_size"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	Typing         *bool         `yaml:"typing"`
	Welcome        string        `yaml:"welcome"`
}

// TypingEnabled reports whether typing envelopes are sent (default true).
func (h HubConfig) TypingEnabled() bool {
	return h.Typing == nil || *h.Typing
}

// RouterConfig holds classification settings.
type RouterConfig struct {
	DefaultHandler     string        `yaml:"default_handler"`
	MentionPrefix      string        `yaml:"mention_prefix"`
	FallbackTimeout    time.Duration `yaml:"fallback_timeout"`
	FallbackConfidence float64       `yaml:"fallback_confidence"`
	ContextMessages    int           `yaml:"context_messages"`
	KeywordBase        float64       `yaml:"keyword_base"`

	// KeywordIncrement and KeywordCap may be set to 0 explicitly; omitted
	// values get the defaults.
	KeywordIncrement *float64 `yaml:"keyword_increment"`
	KeywordCap       *float64 `yaml:"keyword_cap"`
}

// HandlerConfig declares one handler. Handlers are listed in keyword
// priority order.
type HandlerConfig struct {
	Tag         string   `yaml:"tag"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	KeywordBase float64  `yaml:"keyword_base"`
	// SystemPrompt makes this an LLM handler.
	SystemPrompt string `yaml:"system_prompt"`
	// Reply is used when SystemPrompt is empty or no LLM is configured.
	Reply string `yaml:"reply"`
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	ContextMessages int    `yaml:"context_messages"`
}

// BridgeConfig configures the external WebSocket bridge.
type BridgeConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	SessionID      string        `yaml:"session_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Hello          string        `yaml:"hello"`
}

// TranscriptConfig selects the transcript store.
type TranscriptConfig struct {
	Driver string `yaml:"driver"` // none, sqlite, postgres
	DSN    string `yaml:"dsn"`
}
