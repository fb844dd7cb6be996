// Package llm adapts the Gemini API to the handler and router capabilities:
// free-form completion for prompt handlers and structured classification
// for the router's fallback tier.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agent-hub/backend/internal/model"
)

const (
	DefaultModel = "gemini-2.0-flash"

	completionTemperature     = 0.7
	classificationTemperature = 0.3
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Client is a Gemini-backed Completer and Classifier.
type Client struct {
	client *genai.Client
	model  string
	logger *zap.Logger

	// Descriptions maps handler tags to a one-line description used in the
	// classification prompt.
	Descriptions map[string]string
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{
		client: client,
		model:  modelName,
		logger: logger,
	}, nil
}

// Complete generates a reply to prompt under the given system instruction.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](completionTemperature),
	})
}

// Classify asks the model for a JSON routing decision.
func (c *Client) Classify(ctx context.Context, msg model.Message, history []model.Message, handlers []string) (string, error) {
	system := ClassificationPrompt(handlers, c.Descriptions, history)
	return c.generate(ctx, system, fmt.Sprintf("User message: %q", msg.Content()), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](classificationTemperature),
		ResponseMIMEType: "application/json",
	})
}

func (c *Client) generate(ctx context.Context, system, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		c.logger.Debug("gemini request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
