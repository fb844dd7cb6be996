package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/agent-hub/backend/internal/model"
)

// Completer is a text completion capability, typically an LLM client.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// defaultContextMessages is how many history lines a PromptHandler includes.
const defaultContextMessages = 10

// PromptHandler answers with a completion driven by a persona system prompt
// and the recent conversation.
type PromptHandler struct {
	name            string
	systemPrompt    string
	completer       Completer
	contextMessages int
}

// NewPromptHandler creates a PromptHandler. contextMessages <= 0 uses the default.
func NewPromptHandler(name, systemPrompt string, completer Completer, contextMessages int) *PromptHandler {
	if contextMessages <= 0 {
		contextMessages = defaultContextMessages
	}
	return &PromptHandler{
		name:            name,
		systemPrompt:    systemPrompt,
		completer:       completer,
		contextMessages: contextMessages,
	}
}

// Label returns the persona name.
func (h *PromptHandler) Label() string { return h.name }

// Process builds the conversation context and asks the completer for a reply.
func (h *PromptHandler) Process(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
	prompt := fmt.Sprintf("Context: %s\n\nUser message: %s", buildContext(history, h.contextMessages), msg.Content())

	reply, err := h.completer.Complete(ctx, h.systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty completion for session %s", sessionID)
	}
	return reply, nil
}

func buildContext(history []model.Message, max int) string {
	if len(history) == 0 {
		return "No previous conversation."
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Sender()+": "+m.Content())
	}
	return strings.Join(lines, "\n")
}

// StaticHandler always answers with the same text.
type StaticHandler struct {
	name  string
	reply string
}

// NewStaticHandler creates a StaticHandler.
func NewStaticHandler(name, reply string) *StaticHandler {
	return &StaticHandler{name: name, reply: reply}
}

func (h *StaticHandler) Label() string { return h.name }

func (h *StaticHandler) Process(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
	return h.reply, nil
}
