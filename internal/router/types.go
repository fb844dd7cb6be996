package router

import (
	"context"
	"time"

	"github.com/agent-hub/backend/internal/model"
)

// Classifier is the fallback-tier capability. It returns the raw structured
// decision text (a JSON object) for the message.
type Classifier interface {
	Classify(ctx context.Context, msg model.Message, history []model.Message, handlers []string) (string, error)
}

// Keyword tier defaults.
const (
	DefaultKeywordBase      = 0.8
	DefaultKeywordIncrement = 0.1
	DefaultKeywordCap       = 0.2

	DefaultFallbackConfidence = 0.5
	DefaultFallbackTimeout    = 10 * time.Second
	DefaultContextMessages    = 5
	DefaultMentionPrefix      = "@"
)

// Rule is the keyword set of one handler. Rules are evaluated in priority
// order: the first rule wins keyword-count ties.
type Rule struct {
	Handler  string
	Keywords []string
	// Base overrides Config.KeywordBase for this rule when > 0.
	Base float64
}

// Config configures a Router.
type Config struct {
	Rules []Rule

	// Handlers lists every tag the router may select. Rule handlers and the
	// default handler are added automatically.
	Handlers []string

	DefaultHandler     string
	FallbackConfidence float64
	FallbackTimeout    time.Duration
	ContextMessages    int
	MentionPrefix      string

	KeywordBase float64

	// KeywordIncrement and KeywordCap fall back to the defaults when nil;
	// zero disables the per-hit boost. Negative values count as zero.
	KeywordIncrement *float64
	KeywordCap       *float64
}

// DefaultConfig returns the documented constants with no rules.
func DefaultConfig() Config {
	return Config{
		DefaultHandler:     "general",
		FallbackConfidence: DefaultFallbackConfidence,
		FallbackTimeout:    DefaultFallbackTimeout,
		ContextMessages:    DefaultContextMessages,
		MentionPrefix:      DefaultMentionPrefix,
		KeywordBase:        DefaultKeywordBase,
		KeywordIncrement:   Float(DefaultKeywordIncrement),
		KeywordCap:         Float(DefaultKeywordCap),
	}
}

// Float returns a pointer to v, for the optional Config fields.
func Float(v float64) *float64 { return &v }

// Stats counts decisions per tier.
type Stats struct {
	Explicit         int64 `json:"explicit"`
	Keyword          int64 `json:"keyword"`
	Fallback         int64 `json:"fallback"`
	FallbackFailures int64 `json:"fallback_failures"`
}
