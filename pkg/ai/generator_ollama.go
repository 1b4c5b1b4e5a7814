package ai

import (
	"context"
	"fmt"
	"strings"
)

// OllamaGenerator implements TextGenerator over the Ollama /api/chat
// endpoint with a fixed model and sampling temperature.
type OllamaGenerator struct {
	client      *OllamaClient
	model       string
	temperature float64
}

// NewOllamaGenerator builds an Ollama-based TextGenerator. A zero
// temperature leaves the model's default in place.
func NewOllamaGenerator(client *OllamaClient, model string, temperature float64) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: strings.TrimSpace(model), temperature: temperature}
}

// GenerateText sends the prompts as a system+user chat exchange.
func (g *OllamaGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", fmt.Errorf("ollama generation model required")
	}

	messages := make([]ollamaChatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: userPrompt})

	reqBody := ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   false,
	}
	if g.temperature > 0 {
		reqBody.Options = &ollamaChatOptions{Temperature: g.temperature}
	}

	var resp ollamaChatResponse
	if _, err := g.client.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return text, nil
}

// Ollama /api/chat request/response types.

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaChatOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
