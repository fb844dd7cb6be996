package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agent-hub/backend/internal/model"
)

// ClassificationPrompt builds the system instruction for the fallback
// classifier. history should already be trimmed to the context window.
func ClassificationPrompt(handlers []string, descriptions map[string]string, history []model.Message) string {
	tags := append([]string(nil), handlers...)
	sort.Strings(tags)

	var b strings.Builder
	b.WriteString("You are a message router for a multi-agent system. ")
	b.WriteString("Analyze the user's message and decide which handler should answer it.\n\n")

	b.WriteString("Available handlers:\n")
	for _, tag := range tags {
		if desc := descriptions[tag]; desc != "" {
			fmt.Fprintf(&b, "- %s: %s\n", tag, desc)
		} else {
			fmt.Fprintf(&b, "- %s\n", tag)
		}
	}

	b.WriteString("\nRecent conversation context:\n")
	b.WriteString(FormatHistory(history))

	b.WriteString("\n\nRespond with a single JSON object:\n")
	b.WriteString(`{"handler": "<one of the handlers above>", "confidence": 0.0-1.0, "reasoning": "<short explanation>", "extracted_params": {}}`)
	b.WriteString("\nIf uncertain, pick the most general handler with a lower confidence.")
	return b.String()
}

// FormatHistory renders messages as "sender: content" lines.
func FormatHistory(history []model.Message) string {
	if len(history) == 0 {
		return "No previous conversation."
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Sender()+": "+m.Content())
	}
	return strings.Join(lines, "\n")
}
