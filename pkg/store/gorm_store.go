package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"ragdesk/pkg/domain"
)

const migrateLockID int64 = 48104810

const defaultEmbeddingDim = 1024

// GormStore implements VectorStore using GORM + Postgres with pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB, enables pgvector, and runs auto-migrations.
func NewGormStore(dsn string, embeddingDim int) (*GormStore, error) {
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// AddChunks stores chunks with their embeddings in batches.
func (s *GormStore) AddChunks(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks and embeddings length mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	models := make([]ChunkModel, 0, len(chunks))
	for i, chunk := range chunks {
		if err := s.validateEmbeddingDim(embeddings[i]); err != nil {
			return err
		}
		model, err := chunkToModel(chunk, embeddings[i])
		if err != nil {
			return err
		}
		models = append(models, model)
	}
	return s.db.WithContext(ctx).CreateInBatches(&models, 200).Error
}

// Search finds similar chunks by cosine distance, optionally filtered
// to a single filename's chunks.
func (s *GormStore) Search(ctx context.Context, embedding []float32, limit int, filename string) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	type scoredRow struct {
		ID         string
		DocumentID string
		Content    string
		Metadata   []byte
		CreatedAt  time.Time
		Distance   float64
	}
	tx := s.db.WithContext(ctx).Model(&ChunkModel{}).
		Select("id, document_id, content, metadata, created_at, embedding <=> ? AS distance", vec).
		Where("embedding IS NOT NULL")
	if filename != "" {
		tx = tx.Where("metadata->>'filename' = ?", filename)
	}
	var rows []scoredRow
	if err := tx.Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	results := make([]domain.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		meta := map[string]string{}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		chunk := domain.Chunk{
			ID:        row.ID,
			Content:   row.Content,
			Metadata:  meta,
			CreatedAt: row.CreatedAt,
		}
		// Cosine distance in [0,2]; report similarity.
		results = append(results, domain.ScoredChunk{Chunk: chunk, Score: 1 - row.Distance})
	}
	return results, nil
}

// DeleteByDocument removes all chunks stamped with the document id.
func (s *GormStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	tx := s.db.WithContext(ctx).Delete(&ChunkModel{}, "document_id = ?", documentID)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

// ListDocuments derives distinct documents from chunk metadata.
func (s *GormStore) ListDocuments(ctx context.Context) ([]domain.DocumentMeta, error) {
	type docRow struct {
		DocumentID  string
		Filename    string
		ContentHash string
	}
	var rows []docRow
	if err := s.db.WithContext(ctx).Model(&ChunkModel{}).
		Select("DISTINCT document_id, metadata->>'filename' AS filename, metadata->>'content_hash' AS content_hash").
		Order("document_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.DocumentMeta, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, domain.DocumentMeta{
			ID:          row.DocumentID,
			Filename:    row.Filename,
			ContentHash: row.ContentHash,
		})
	}
	return docs, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func chunkToModel(chunk domain.Chunk, embedding []float32) (ChunkModel, error) {
	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return ChunkModel{}, fmt.Errorf("marshal chunk metadata: %w", err)
	}
	vec := pgvector.NewVector(embedding)
	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return ChunkModel{
		ID:         chunk.ID,
		DocumentID: chunk.Metadata[domain.MetaDocumentID],
		Content:    chunk.Content,
		Metadata:   meta,
		Embedding:  &vec,
		CreatedAt:  createdAt,
	}, nil
}
