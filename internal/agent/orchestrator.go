package agent

import (
	"context"
	"log/slog"

	"ragdesk/pkg/ai"
	"ragdesk/pkg/store"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Answer         string
	Plan           []string
	Reasoning      string
	AgentReasoning bool
}

// Orchestrator runs the four-stage reasoning pipeline:
// plan, retrieve, reason, respond.
type Orchestrator struct {
	planner   planner
	retriever retriever
	reasoner  reasoner
	responder responder
}

// NewOrchestrator wires the pipeline stages around shared clients.
func NewOrchestrator(generator ai.TextGenerator, vectorStore store.VectorStore, embedder ai.Embedder, k int) *Orchestrator {
	return &Orchestrator{
		planner:   planner{generator: generator},
		retriever: retriever{store: vectorStore, embedder: embedder, k: k},
		reasoner:  reasoner{generator: generator},
		responder: responder{generator: generator},
	}
}

// Execute runs all stages in order. When retrieval yields nothing the
// reasoning and response stages are skipped and a fixed answer is
// returned with the plan intact.
func (o *Orchestrator) Execute(ctx context.Context, query string) (Result, error) {
	slog.Debug("agent pipeline started", "query_len", len(query))

	plan, err := o.planner.plan(ctx, query)
	if err != nil {
		return Result{}, err
	}

	chunks, err := o.retriever.retrieve(ctx, query)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("agent retrieval complete", "chunks", len(chunks))

	if len(chunks) == 0 {
		return Result{
			Answer:         "No relevant information found in documents",
			Plan:           plan,
			Reasoning:      "No documents retrieved",
			AgentReasoning: true,
		}, nil
	}

	analysis, err := o.reasoner.reason(ctx, query, chunks)
	if err != nil {
		return Result{}, err
	}

	answer, err := o.responder.respond(ctx, query, analysis, chunks)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Answer:         answer,
		Plan:           plan,
		Reasoning:      analysis,
		AgentReasoning: true,
	}, nil
}
