package domain

import "time"

// Chunk is one embedded slice of an ingested document. Chunks are
// immutable once stored; they are deleted only when their owning
// document is deleted.
type Chunk struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Reserved metadata keys stamped on every chunk at ingestion time.
const (
	MetaDocumentID  = "document_id"
	MetaFilename    = "filename"
	MetaContentHash = "content_hash"
)

// ScoredChunk pairs a chunk with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// DocumentMeta identifies an ingested document. The authoritative list
// is derived from chunk metadata in the vector store.
type DocumentMeta struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentHash string `json:"-"`
}

// Message is a single chat turn within a session.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionInfo summarizes a chat session for listing.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	MessageCount int       `json:"message_count"`
}
