package store

import (
	"context"

	"ragdesk/pkg/domain"
)

// VectorStore persists document chunks with embeddings and supports
// similarity search and metadata-filtered deletion.
type VectorStore interface {
	// AddChunks stores chunks with their embeddings in one call.
	AddChunks(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error
	// Search returns up to limit chunks ordered by similarity to the
	// query embedding. A non-empty filename restricts results to chunks
	// whose filename metadata matches it.
	Search(ctx context.Context, embedding []float32, limit int, filename string) ([]domain.ScoredChunk, error)
	// DeleteByDocument removes all chunks whose document_id metadata
	// matches and reports how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// ListDocuments derives the distinct set of ingested documents from
	// chunk metadata. Used to rebuild the registry at startup.
	ListDocuments(ctx context.Context) ([]domain.DocumentMeta, error)
}
