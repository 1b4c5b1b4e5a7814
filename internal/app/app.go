package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragdesk/internal/agent"
	"ragdesk/internal/ingest"
	"ragdesk/internal/registry"
	"ragdesk/pkg/ai"
	"ragdesk/pkg/domain"
	"ragdesk/pkg/storage"
	"ragdesk/pkg/store"
)

const noInfoAnswer = "No relevant information in the provided documents"

const answerSystemPrompt = "You are a helpful AI assistant. Use the following context from a document to answer the question. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// Options carries everything the application core needs. All clients
// are constructed by the caller; App never builds its own.
type Options struct {
	Store        store.VectorStore
	Embedder     ai.Embedder
	Generator    ai.TextGenerator
	Registry     *registry.Registry
	Orchestrator *agent.Orchestrator
	Archive      storage.ObjectStore // optional upload archive

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	EmbedWorkers int
}

// App is the document question-answering core behind the HTTP layer.
type App struct {
	log          *slog.Logger
	store        store.VectorStore
	embedder     ai.Embedder
	generator    ai.TextGenerator
	registry     *registry.Registry
	orchestrator *agent.Orchestrator
	archive      storage.ObjectStore

	chunkSize    int
	chunkOverlap int
	topK         int
	embedWorkers int
}

// New builds the application core and rebuilds the document registry
// from vector-store metadata. A failed rebuild is logged and the
// service starts with an empty registry.
func New(ctx context.Context, log *slog.Logger, opts Options) *App {
	a := &App{
		log:          log,
		store:        opts.Store,
		embedder:     opts.Embedder,
		generator:    opts.Generator,
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		archive:      opts.Archive,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		topK:         opts.TopK,
		embedWorkers: opts.EmbedWorkers,
	}
	if a.embedWorkers <= 0 {
		a.embedWorkers = 4
	}

	docs, err := a.store.ListDocuments(ctx)
	if err != nil {
		a.log.Warn("registry rebuild failed, starting empty", "error", err)
		return a
	}
	for _, doc := range docs {
		a.registry.RegisterDocument(doc.ID, doc.Filename, doc.ContentHash)
	}
	if len(docs) > 0 {
		a.log.Info("registry rebuilt from vector store", "documents", len(docs))
	}
	return a
}

// IngestDocument reads, chunks, embeds and stores the file at path,
// returning the number of chunks ingested. Duplicate content is
// rejected before any parsing happens.
func (a *App) IngestDocument(ctx context.Context, path, filename string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read upload: %w", err)
	}

	contentHash := ingest.HashBytes(data)
	if a.registry.HasHash(contentHash) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateContent, filename)
	}

	fileType, ok := ingest.DetectType(filename)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filename)
	}

	segments, err := ingest.Load(path, fileType)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", filename, err)
	}

	documentID := uuid.NewString()
	var chunks []domain.Chunk
	for _, seg := range segments {
		for _, text := range ingest.ChunkText(seg.Text, a.chunkSize, a.chunkOverlap) {
			meta := map[string]string{
				domain.MetaDocumentID:  documentID,
				domain.MetaFilename:    filename,
				domain.MetaContentHash: contentHash,
				"chunk":                strconv.Itoa(len(chunks)),
			}
			for k, v := range seg.Metadata {
				meta[k] = v
			}
			chunks = append(chunks, domain.Chunk{
				ID:       uuid.NewString(),
				Content:  text,
				Metadata: meta,
			})
		}
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("load %s: no text content", filename)
	}

	embeddings, err := a.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if err := a.store.AddChunks(ctx, chunks, embeddings); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	if a.archive != nil {
		key := archiveKey(documentID, filename)
		if err := a.archive.Put(ctx, key, data, contentTypeFor(fileType)); err != nil {
			a.log.Warn("archive upload failed", "key", key, "error", err)
		}
	}

	evicted := a.registry.RegisterDocument(documentID, filename, contentHash)
	for _, old := range evicted {
		if _, err := a.store.DeleteByDocument(ctx, old.ID); err != nil {
			a.log.Warn("evicted document chunk cleanup failed", "document_id", old.ID, "error", err)
		}
		a.deleteArchived(ctx, old.ID, old.Filename)
	}

	a.log.Info("document ingested",
		"document_id", documentID, "filename", filename, "chunks", len(chunks))
	return len(chunks), nil
}

func (a *App) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	if batch, ok := a.embedder.(ai.BatchEmbedder); ok {
		embeddings, err := batch.EmbedTexts(ctx, texts, "retrieval_document")
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		return embeddings, nil
	}

	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.embedWorkers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := a.embedder.EmbedText(gctx, text, "retrieval_document")
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Answer runs the simple retrieval pipeline. A search with no hits
// returns a fixed answer without calling the model at all. The session
// id is recorded for tracing only; query endpoints do not write
// history themselves.
func (a *App) Answer(ctx context.Context, sessionID, query, documentName string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	a.log.Debug("query received", "session_id", sessionID, "document_name", documentName)

	embedding, err := a.embedder.EmbedText(ctx, query, "retrieval_query")
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	hits, err := a.store.Search(ctx, embedding, a.topK, documentName)
	if err != nil {
		return "", fmt.Errorf("search chunks: %w", err)
	}
	if len(hits) == 0 {
		return noInfoAnswer, nil
	}

	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Chunk.Content)
	}
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:",
		strings.Join(parts, "\n\n---\n\n"), query)

	answer, err := a.generator.GenerateText(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// AnswerWithAgents runs the four-stage agent pipeline.
func (a *App) AnswerWithAgents(ctx context.Context, sessionID, query string) (agent.Result, error) {
	if strings.TrimSpace(query) == "" {
		return agent.Result{}, ErrEmptyQuery
	}
	a.log.Debug("agent query received", "session_id", sessionID)
	res, err := a.orchestrator.Execute(ctx, query)
	if err != nil {
		return agent.Result{}, fmt.Errorf("agent pipeline: %w", err)
	}
	return res, nil
}

// ListDocuments returns registered documents in insertion order.
func (a *App) ListDocuments() []domain.DocumentMeta {
	records := a.registry.Documents()
	docs := make([]domain.DocumentMeta, 0, len(records))
	for _, r := range records {
		docs = append(docs, domain.DocumentMeta{ID: r.ID, Filename: r.Filename, ContentHash: r.ContentHash})
	}
	return docs
}

// DeleteDocument removes a document's chunks, archived upload and
// registry entry. Chunks go first so a failed store delete leaves the
// registry entry (and its content hash) intact.
func (a *App) DeleteDocument(ctx context.Context, id string) error {
	record, ok := a.registry.Document(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if _, err := a.store.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	a.registry.RemoveDocument(id)
	a.deleteArchived(ctx, id, record.Filename)
	a.log.Info("document deleted", "document_id", id, "filename", record.Filename)
	return nil
}

// NewSession creates a chat session.
func (a *App) NewSession() string { return a.registry.CreateSession() }

// Sessions lists chat sessions, most recently accessed first.
func (a *App) Sessions() []domain.SessionInfo { return a.registry.Sessions() }

// History returns a session's messages in order.
func (a *App) History(sessionID string) []domain.Message { return a.registry.History(sessionID) }

// AppendMessage saves a chat message, creating the session if needed.
func (a *App) AppendMessage(sessionID, role, content string) {
	a.registry.AppendMessage(sessionID, role, content)
}

// ClearSession empties a session's history.
func (a *App) ClearSession(sessionID string) { a.registry.ClearHistory(sessionID) }

func (a *App) deleteArchived(ctx context.Context, documentID, filename string) {
	if a.archive == nil {
		return
	}
	key := archiveKey(documentID, filename)
	if err := a.archive.Delete(ctx, key); err != nil {
		a.log.Warn("archive delete failed", "key", key, "error", err)
	}
}

func archiveKey(documentID, filename string) string {
	return "documents/" + documentID + strings.ToLower(filepath.Ext(filename))
}

func contentTypeFor(t ingest.FileType) string {
	switch t {
	case ingest.TypePDF:
		return "application/pdf"
	case ingest.TypeCSV:
		return "text/csv"
	case ingest.TypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ingest.TypeXLS:
		return "application/vnd.ms-excel"
	default:
		return "text/plain"
	}
}
