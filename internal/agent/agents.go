package agent

import (
	"context"
	"fmt"
	"strings"

	"ragdesk/pkg/ai"
	"ragdesk/pkg/domain"
	"ragdesk/pkg/store"
)

const (
	plannerSystemPrompt   = "You are a planning agent. Given a user query, break it down into logical steps. Return a JSON list of steps to answer this query."
	reasonerSystemPrompt  = "You are a reasoning agent. Analyze the provided documents in context of the user query. Identify key information, connections, and insights."
	responderSystemPrompt = "You are a response generation agent. Using the analysis and retrieved documents, generate a comprehensive, grounded answer to the user query. Ground your answer only in the provided documents. If you don't know, say so."
)

// planner breaks a query into steps. The model's output is kept as raw
// text inside a one-element plan; downstream stages never parse it.
type planner struct {
	generator ai.TextGenerator
}

func (p *planner) plan(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf("Query: %s\n\nSteps (return as JSON list):", query)
	text, err := p.generator.GenerateText(ctx, plannerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan query: %w", err)
	}
	return []string{text}, nil
}

// retriever fetches the top-k chunks for the query across all documents.
type retriever struct {
	store    store.VectorStore
	embedder ai.Embedder
	k        int
}

func (r *retriever) retrieve(ctx context.Context, query string) ([]domain.ScoredChunk, error) {
	embedding, err := r.embedder.EmbedText(ctx, query, "retrieval_query")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.store.Search(ctx, embedding, r.k, "")
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return chunks, nil
}

// reasoner analyzes retrieved chunks in the context of the query.
type reasoner struct {
	generator ai.TextGenerator
}

func (r *reasoner) reason(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error) {
	prompt := fmt.Sprintf("Query: %s\n\nRetrieved Documents:\n%s\n\nAnalysis:", query, joinChunks(chunks))
	text, err := r.generator.GenerateText(ctx, reasonerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("analyze chunks: %w", err)
	}
	return text, nil
}

// responder produces the final grounded answer. It receives the chunk
// context again alongside the analysis so the model can cite sources
// directly rather than through the analysis alone.
type responder struct {
	generator ai.TextGenerator
}

func (r *responder) respond(ctx context.Context, query, analysis string, chunks []domain.ScoredChunk) (string, error) {
	prompt := fmt.Sprintf("Query: %s\n\nPrevious Analysis: %s\n\nSource Documents:\n%s\n\nFinal Answer:",
		query, analysis, joinChunks(chunks))
	text, err := r.generator.GenerateText(ctx, responderSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	return text, nil
}

func joinChunks(chunks []domain.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Chunk.Content)
	}
	return strings.Join(parts, "\n---\n")
}
