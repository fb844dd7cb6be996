package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agent-hub/backend/internal/transcript"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Hub.HistoryWindow < 1 {
		return errors.New("hub.history_window must be >= 1")
	}
	if c.Hub.InboxSize < 1 {
		return errors.New("hub.inbox_size must be >= 1")
	}

	if c.Router.FallbackConfidence < 0 || c.Router.FallbackConfidence > 1 {
		return fmt.Errorf("router.fallback_confidence must be within [0, 1], got %v", c.Router.FallbackConfidence)
	}
	if c.Router.ContextMessages < 1 {
		return errors.New("router.context_messages must be >= 1")
	}
	if c.Router.KeywordIncrement != nil && *c.Router.KeywordIncrement < 0 {
		return errors.New("router.keyword_increment must be >= 0")
	}
	if c.Router.KeywordCap != nil && *c.Router.KeywordCap < 0 {
		return errors.New("router.keyword_cap must be >= 0")
	}

	tags := make(map[string]bool, len(c.Handlers))
	for i, h := range c.Handlers {
		if strings.TrimSpace(h.Tag) == "" {
			return fmt.Errorf("handlers[%d].tag is required", i)
		}
		if tags[h.Tag] {
			return fmt.Errorf("handlers[%d].tag %q is duplicated", i, h.Tag)
		}
		tags[h.Tag] = true
		if h.SystemPrompt == "" && h.Reply == "" {
			return fmt.Errorf("handlers[%d] (%s) needs system_prompt or reply", i, h.Tag)
		}
	}
	if !tags[c.Router.DefaultHandler] {
		return fmt.Errorf("router.default_handler %q is not a configured handler", c.Router.DefaultHandler)
	}

	if c.Bridge.Enabled {
		if c.Bridge.URL == "" {
			return errors.New("bridge.url is required when the bridge is enabled")
		}
		if !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
			return fmt.Errorf("bridge.url must use ws:// or wss://, got %q", c.Bridge.URL)
		}
		if c.Bridge.BackoffBase > c.Bridge.BackoffMax {
			return fmt.Errorf("bridge.backoff_base (%s) cannot exceed backoff_max (%s)", c.Bridge.BackoffBase, c.Bridge.BackoffMax)
		}
		if c.Bridge.MaxAttempts < 1 {
			return errors.New("bridge.max_attempts must be >= 1")
		}
	}

	switch c.Transcript.Driver {
	case transcript.DriverNone, transcript.DriverSQLite, transcript.DriverPostgres:
	default:
		return fmt.Errorf("transcript.driver must be none, sqlite or postgres, got %q", c.Transcript.Driver)
	}
	if c.Transcript.Driver != transcript.DriverNone && c.Transcript.DSN == "" {
		return fmt.Errorf("transcript.dsn is required for driver %s", c.Transcript.Driver)
	}

	return nil
}
