package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatEmbedder calls any OpenAI-compatible /v1/embeddings endpoint
// with a fixed model.
type OpenAICompatEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatEmbedder builds an OpenAI-compatible Embedder.
// baseURL should include the /v1 prefix.
func NewOpenAICompatEmbedder(baseURL, apiKey, model string) *OpenAICompatEmbedder {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAICompatEmbedder{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// EmbedText returns an embedding for a single text.
func (e *OpenAICompatEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts returns embeddings for multiple texts in one request.
func (e *OpenAICompatEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if e.model == "" {
		return nil, fmt.Errorf("openai-compat embedding model required")
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding texts required")
	}

	reqBody := oaiEmbedRequest{
		Model: e.model,
		Input: texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := e.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai-compat api error: %s", resp.Status)
	}

	var embedResp oaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("openai-compat decode: %w", err)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("openai-compat embeddings: got %d vectors for %d inputs", len(embedResp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, item := range embedResp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("openai-compat embeddings: index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("openai-compat embeddings: missing vector for input %d", i)
		}
	}
	return vectors, nil
}

type oaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
