package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
llmBaseURL: https://api.groq.com/openai/v1
llmAPIKey: test-key
generationModel: llama-3.1-8b-instant
embeddingModel: bge-large
storeBackend: memory
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port default: %q", cfg.Port)
	}
	if cfg.ChunkSize != 800 || cfg.ChunkOverlap != 150 {
		t.Fatalf("chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 3 {
		t.Fatalf("topK default: %d", cfg.TopK)
	}
	if cfg.MaxDocuments != 50 || cfg.MaxSessions != 50 || cfg.MaxMessages != 100 {
		t.Fatalf("ceiling defaults: %d/%d/%d", cfg.MaxDocuments, cfg.MaxSessions, cfg.MaxMessages)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Fatalf("upload default: %d", cfg.MaxUploadBytes)
	}
	if cfg.EmbeddingDimensions != 1024 {
		t.Fatalf("dimension default: %d", cfg.EmbeddingDimensions)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("VECTOR_DIMENSION", "768")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMAPIKey != "env-key" {
		t.Fatalf("api key override: %q", cfg.LLMAPIKey)
	}
	if cfg.GenerationModel != "env-model" {
		t.Fatalf("model override: %q", cfg.GenerationModel)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("dimension override: %d", cfg.EmbeddingDimensions)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	path := writeConfig(t, `
llmBaseURL: https://api.groq.com/openai/v1
generationModel: m
embeddingModel: e
storeBackend: memory
`)
	t.Setenv("LLM_API_KEY", "")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "llmAPIKey") {
		t.Fatalf("expected llmAPIKey error, got %v", err)
	}
}

func TestLoadRejectsPostgresWithoutDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
llmBaseURL: https://api.groq.com/openai/v1
llmAPIKey: k
generationModel: m
embeddingModel: e
storeBackend: postgres
`)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "databaseURL") {
		t.Fatalf("expected databaseURL error, got %v", err)
	}
}

func TestLoadRejectsOverlapNotSmallerThanSize(t *testing.T) {
	path := writeConfig(t, minimalConfig+"\nchunkSize: 100\nchunkOverlap: 100\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "chunkOverlap") {
		t.Fatalf("expected chunkOverlap error, got %v", err)
	}
}
