package config

import (
	"time"

	"github.com/agent-hub/backend/internal/bridge"
	"github.com/agent-hub/backend/internal/hub"
	"github.com/agent-hub/backend/internal/router"
	"github.com/agent-hub/backend/internal/transcript"
)

// Default values for optional configuration fields.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultWelcome         = "Welcome! I'm your multi-agent assistant. I have specialists in fitness (Helios) and nutrition (Ceres). How can I help you today?"
	DefaultTranscriptPath  = "transcripts.db"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Hub defaults
	if c.Hub.HistoryWindow == 0 {
		c.Hub.HistoryWindow = hub.DefaultHistoryWindow
	}
	if c.Hub.InboxSize == 0 {
		c.Hub.InboxSize = hub.DefaultInboxSize
	}
	if c.Hub.HandlerTimeout == 0 {
		c.Hub.HandlerTimeout = hub.DefaultHandlerTimeout
	}
	if c.Hub.Welcome == "" {
		c.Hub.Welcome = DefaultWelcome
	}

	// Router defaults
	if c.Router.DefaultHandler == "" {
		c.Router.DefaultHandler = "general"
	}
	if c.Router.MentionPrefix == "" {
		c.Router.MentionPrefix = router.DefaultMentionPrefix
	}
	if c.Router.FallbackTimeout == 0 {
		c.Router.FallbackTimeout = router.DefaultFallbackTimeout
	}
	if c.Router.FallbackConfidence == 0 {
		c.Router.FallbackConfidence = router.DefaultFallbackConfidence
	}
	if c.Router.ContextMessages == 0 {
		c.Router.ContextMessages = router.DefaultContextMessages
	}
	if c.Router.KeywordBase == 0 {
		c.Router.KeywordBase = router.DefaultKeywordBase
	}
	if c.Router.KeywordIncrement == nil {
		c.Router.KeywordIncrement = router.Float(router.DefaultKeywordIncrement)
	}
	if c.Router.KeywordCap == nil {
		c.Router.KeywordCap = router.Float(router.DefaultKeywordCap)
	}

	if len(c.Handlers) == 0 {
		c.Handlers = DefaultHandlers()
	}

	// LLM defaults
	if c.LLM.ContextMessages == 0 {
		c.LLM.ContextMessages = 10
	}

	// Bridge defaults
	if c.Bridge.SessionID == "" {
		c.Bridge.SessionID = bridge.DefaultSessionID
	}
	if c.Bridge.ConnectTimeout == 0 {
		c.Bridge.ConnectTimeout = bridge.DefaultConnectTimeout
	}
	if c.Bridge.PingInterval == 0 {
		c.Bridge.PingInterval = bridge.DefaultPingInterval
	}
	def := bridge.DefaultBackoff()
	if c.Bridge.BackoffBase == 0 {
		c.Bridge.BackoffBase = def.Base
	}
	if c.Bridge.BackoffMax == 0 {
		c.Bridge.BackoffMax = def.Max
	}
	if c.Bridge.MaxAttempts == 0 {
		c.Bridge.MaxAttempts = def.MaxAttempts
	}
	if c.Bridge.Hello == "" {
		c.Bridge.Hello = bridge.DefaultHello
	}

	// Transcript defaults
	if c.Transcript.Driver == "" {
		c.Transcript.Driver = transcript.DriverSQLite
	}
	if c.Transcript.Driver == transcript.DriverSQLite && c.Transcript.DSN == "" {
		c.Transcript.DSN = DefaultTranscriptPath
	}
}

// DefaultHandlers returns the fitness, nutrition and general handlers.
func DefaultHandlers() []HandlerConfig {
	rules := make(map[string]router.Rule)
	for _, r := range router.DefaultRules() {
		rules[r.Handler] = r
	}

	return []HandlerConfig{
		{
			Tag:         "fitness",
			Label:       "Helios",
			Description: "fitness, workouts, exercise, training, gym activities, physical health, sports",
			Keywords:    rules["fitness"].Keywords,
			SystemPrompt: `You are Helios, a fitness and exercise expert. You help users with workout planning, ` +
				`exercise recommendations, goal setting, strength training, cardio, recovery and progress tracking. ` +
				`Be energetic, evidence-based and safety-first. Ask about fitness level, injuries and goals before ` +
				`giving detailed advice. Keep responses practical and actionable.`,
			Reply: "Let's get moving! Tell me about your current fitness level and goals.",
		},
		{
			Tag:         "nutrition",
			Label:       "Ceres",
			Description: "nutrition, food, meals, diet, recipes, cooking, eating habits, dietary advice",
			Keywords:    rules["nutrition"].Keywords,
			SystemPrompt: `You are Ceres, a nutrition and diet expert. You help users with meal planning, recipes, ` +
				`balanced eating, dietary restrictions and healthy habits. Be warm and practical, and recommend ` +
				`a professional for medical dietary needs.`,
			Reply: "Happy to help with food! What are your dietary preferences and goals?",
		},
		{
			Tag:         "general",
			Label:       "Assistant",
			Description: "greetings, general questions, chitchat or unclear requests",
			Keywords:    rules["general"].Keywords,
			KeywordBase: rules["general"].Base,
			SystemPrompt: `You are a friendly general assistant in a multi-agent system with a fitness specialist ` +
				`(Helios) and a nutrition specialist (Ceres). Answer briefly and point users to the right specialist.`,
			Reply: "Hi! I can connect you with Helios for fitness or Ceres for nutrition. What would you like to talk about?",
		},
	}
}
