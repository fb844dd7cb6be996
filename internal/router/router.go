package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/model"
)

type rule struct {
	handler  string
	keywords []string // lower-cased, non-empty
	base     float64
}

// Router classifies messages to handler tags.
type Router struct {
	cfg        Config
	classifier Classifier
	logger     *zap.Logger

	rules    []rule
	handlers []string
	byLower  map[string]string // lower-cased tag -> tag

	increment float64
	boostCap  float64

	explicit         atomic.Int64
	keyword          atomic.Int64
	fallback         atomic.Int64
	fallbackFailures atomic.Int64
}

// New creates a Router. classifier may be nil, in which case messages that
// match no keyword go straight to the default handler.
func New(cfg Config, classifier Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.DefaultHandler == "" {
		cfg.DefaultHandler = def.DefaultHandler
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = def.FallbackConfidence
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = def.FallbackTimeout
	}
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = def.ContextMessages
	}
	if cfg.MentionPrefix == "" {
		cfg.MentionPrefix = def.MentionPrefix
	}
	if cfg.KeywordBase <= 0 {
		cfg.KeywordBase = def.KeywordBase
	}
	if cfg.KeywordIncrement == nil {
		cfg.KeywordIncrement = def.KeywordIncrement
	}
	if cfg.KeywordCap == nil {
		cfg.KeywordCap = def.KeywordCap
	}
	cfg.FallbackConfidence = model.ClampConfidence(cfg.FallbackConfidence)

	r := &Router{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		byLower:    make(map[string]string),
		increment:  max(*cfg.KeywordIncrement, 0),
		boostCap:   max(*cfg.KeywordCap, 0),
	}

	r.addHandler(cfg.DefaultHandler)
	for _, tag := range cfg.Handlers {
		r.addHandler(tag)
	}
	for _, rl := range cfg.Rules {
		r.addHandler(rl.Handler)

		kws := make([]string, 0, len(rl.Keywords))
		for _, kw := range rl.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		base := rl.Base
		if base <= 0 {
			base = cfg.KeywordBase
		}
		r.rules = append(r.rules, rule{handler: rl.Handler, keywords: kws, base: base})
	}

	return r
}

func (r *Router) addHandler(tag string) {
	if tag == "" {
		return
	}
	lower := strings.ToLower(tag)
	if _, ok := r.byLower[lower]; ok {
		return
	}
	r.byLower[lower] = tag
	r.handlers = append(r.handlers, tag)
}

// Handlers returns every tag the router may select.
func (r *Router) Handlers() []string {
	return append([]string(nil), r.handlers...)
}

// DefaultHandler returns the tag used when classification fails.
func (r *Router) DefaultHandler() string {
	return r.cfg.DefaultHandler
}

// Stats returns decision counters.
func (r *Router) Stats() Stats {
	return Stats{
		Explicit:         r.explicit.Load(),
		Keyword:          r.keyword.Load(),
		Fallback:         r.fallback.Load(),
		FallbackFailures: r.fallbackFailures.Load(),
	}
}

// Classify selects a handler for msg. history is the conversation before
// msg, oldest first. It never fails; the returned confidence is in [0, 1].
func (r *Router) Classify(ctx context.Context, msg model.Message, history []model.Message) model.RoutingDecision {
	text := strings.ToLower(msg.Content())

	if d, ok := r.explicitMention(text); ok {
		r.explicit.Add(1)
		return d
	}

	if d, ok := r.keywordTier(text); ok {
		r.keyword.Add(1)
		r.logger.Debug("keyword route",
			zap.String("handler", d.Handler),
			zap.Float64("confidence", d.Confidence),
		)
		return d
	}

	r.fallback.Add(1)
	return r.fallbackTier(ctx, msg, history)
}

// explicitMention looks for "<prefix><tag>" naming a known handler.
func (r *Router) explicitMention(text string) (model.RoutingDecision, bool) {
	prefix := strings.ToLower(r.cfg.MentionPrefix)
	for _, field := range strings.Fields(text) {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		name := strings.TrimRightFunc(field[len(prefix):], func(c rune) bool {
			return !(c == '-' || c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
		})
		if tag, ok := r.byLower[name]; ok {
			return model.RoutingDecision{
				Handler:    tag,
				Confidence: 1.0,
				Reasoning:  "explicit mention",
				Tier:       model.TierExplicit,
			}, true
		}
	}
	return model.RoutingDecision{}, false
}

// keywordTier counts distinct keyword hits per rule. It does no I/O.
func (r *Router) keywordTier(text string) (model.RoutingDecision, bool) {
	best := -1
	bestHits := 0
	var bestMatched []string

	for i, rl := range r.rules {
		var matched []string
		for _, kw := range rl.keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		// Strictly greater keeps the earlier rule on ties.
		if len(matched) > bestHits {
			best, bestHits, bestMatched = i, len(matched), matched
		}
	}

	if best < 0 {
		return model.RoutingDecision{}, false
	}

	rl := r.rules[best]
	boost := min(float64(bestHits)*r.increment, r.boostCap)

	return model.RoutingDecision{
		Handler:    rl.handler,
		Confidence: model.ClampConfidence(rl.base + boost),
		Reasoning:  fmt.Sprintf("found %d %s keyword(s)", bestHits, rl.handler),
		Params: map[string]any{
			"keywords_found": bestHits,
			"matched":        bestMatched,
		},
		Tier: model.TierKeyword,
	}, true
}

type classifyResult struct {
	raw string
	err error
}

// fallbackTier asks the classifier, bounded by FallbackTimeout.
func (r *Router) fallbackTier(ctx context.Context, msg model.Message, history []model.Message) model.RoutingDecision {
	if r.classifier == nil {
		return r.defaultDecision(&model.ClassificationError{Cause: "no_classifier"})
	}

	if n := r.cfg.ContextMessages; len(history) > n {
		history = history[len(history)-n:]
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FallbackTimeout)
	defer cancel()

	// Buffered so the call can finish after a timeout without blocking.
	done := make(chan classifyResult, 1)
	go func() {
		raw, err := r.classifier.Classify(ctx, msg, history, r.Handlers())
		done <- classifyResult{raw: raw, err: err}
	}()

	var res classifyResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		cause := "error"
		if errors.Is(res.err, context.DeadlineExceeded) {
			cause = "timeout"
		}
		return r.defaultDecision(&model.ClassificationError{Cause: cause, Err: res.err})
	}

	d, err := r.parseDecision(res.raw)
	if err != nil {
		return r.defaultDecision(err)
	}
	return d
}

// llmDecision is the JSON object the classifier is asked to produce.
type llmDecision struct {
	Agent           string         `json:"agent"`
	Handler         string         `json:"handler"`
	Confidence      *float64       `json:"confidence"`
	Reasoning       string         `json:"reasoning"`
	ExtractedParams map[string]any `json:"extracted_params"`
}

func (r *Router) parseDecision(raw string) (model.RoutingDecision, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return model.RoutingDecision{}, &model.ClassificationError{Cause: "parse", Err: errors.New("no JSON object in classifier output")}
	}

	var out llmDecision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return model.RoutingDecision{}, &model.ClassificationError{Cause: "parse", Err: err}
	}

	name := out.Handler
	if name == "" {
		name = out.Agent
	}
	tag, ok := r.byLower[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return model.RoutingDecision{}, &model.ClassificationError{Cause: "unknown_handler", Err: fmt.Errorf("%w: %q", model.ErrUnknownHandler, name)}
	}

	confidence := r.cfg.FallbackConfidence
	if out.Confidence != nil {
		confidence = *out.Confidence
	}
	reasoning := out.Reasoning
	if reasoning == "" {
		reasoning = "classifier decision"
	}

	return model.RoutingDecision{
		Handler:    tag,
		Confidence: model.ClampConfidence(confidence),
		Reasoning:  reasoning,
		Params:     out.ExtractedParams,
		Tier:       model.TierFallback,
	}, nil
}

func (r *Router) defaultDecision(err error) model.RoutingDecision {
	r.fallbackFailures.Add(1)
	r.logger.Warn("fallback classification failed, using default handler",
		zap.String("handler", r.cfg.DefaultHandler),
		zap.Error(err),
	)
	return model.RoutingDecision{
		Handler:    r.cfg.DefaultHandler,
		Confidence: r.cfg.FallbackConfidence,
		Reasoning:  "default routing: " + err.Error(),
		Tier:       model.TierDefault,
	}
}
