package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ChunkModel is the GORM model backing chunk persistence.
type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID string           `gorm:"not null;index"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1024)"`
	CreatedAt  time.Time        `gorm:"not null;index"`
}
