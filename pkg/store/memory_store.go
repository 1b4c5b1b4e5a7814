package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragdesk/pkg/domain"
)

// MemoryStore keeps chunks in-process with brute-force cosine search.
// Useful for development and tests; data does not survive restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	chunks     []domain.Chunk
	embeddings [][]float32
}

// NewMemoryStore initializes an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AddChunks stores chunks with their embeddings.
func (m *MemoryStore) AddChunks(_ context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	m.embeddings = append(m.embeddings, embeddings...)
	return nil
}

// Search returns the top chunks by cosine similarity.
func (m *MemoryStore) Search(_ context.Context, embedding []float32, limit int, filename string) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]domain.ScoredChunk, 0, len(m.chunks))
	for i, chunk := range m.chunks {
		if filename != "" && chunk.Metadata[domain.MetaFilename] != filename {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: chunk,
			Score: cosine(m.embeddings[i], embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteByDocument removes all chunks stamped with the document id.
func (m *MemoryStore) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keptChunks := m.chunks[:0]
	keptEmbeddings := m.embeddings[:0]
	var removed int64
	for i, chunk := range m.chunks {
		if chunk.Metadata[domain.MetaDocumentID] == documentID {
			removed++
			continue
		}
		keptChunks = append(keptChunks, chunk)
		keptEmbeddings = append(keptEmbeddings, m.embeddings[i])
	}
	m.chunks = keptChunks
	m.embeddings = keptEmbeddings
	return removed, nil
}

// ListDocuments derives distinct documents from chunk metadata.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]domain.DocumentMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	docs := make([]domain.DocumentMeta, 0)
	for _, chunk := range m.chunks {
		id := chunk.Metadata[domain.MetaDocumentID]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		docs = append(docs, domain.DocumentMeta{
			ID:          id,
			Filename:    chunk.Metadata[domain.MetaFilename],
			ContentHash: chunk.Metadata[domain.MetaContentHash],
		})
	}
	return docs, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
