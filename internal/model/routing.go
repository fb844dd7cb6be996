package model

// Tier names the classification stage that produced a RoutingDecision.
type Tier string

const (
	TierExplicit Tier = "explicit"
	TierKeyword  Tier = "keyword"
	TierFallback Tier = "fallback"
	TierDefault  Tier = "default"
)

// RoutingDecision names the handler selected for one inbound message.
// Confidence is always within [0, 1].
type RoutingDecision struct {
	Handler    string         `json:"handler"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Params     map[string]any `json:"extracted_params,omitempty"`
	Tier       Tier           `json:"tier"`
}

// ClampConfidence limits c to [0, 1]. NaN maps to 0.
func ClampConfidence(c float64) float64 {
	switch {
	case c != c:
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
