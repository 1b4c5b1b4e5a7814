package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file. It can
// be overridden with the CONFIG_PATH environment variable.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with
// environment-variable overrides for secrets and deploy settings.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// LLM provider: "openai" (any OpenAI-compatible endpoint) or "ollama".
	LLMProvider     string  `yaml:"llmProvider"`
	LLMBaseURL      string  `yaml:"llmBaseURL"`
	LLMAPIKey       string  `yaml:"llmAPIKey"`
	GenerationModel string  `yaml:"generationModel"`
	Temperature     float64 `yaml:"temperature"`

	EmbeddingModel      string `yaml:"embeddingModel"`
	EmbeddingDimensions int    `yaml:"embeddingDimensions"`
	OllamaURL           string `yaml:"ollamaURL"`

	// Vector store backend: "postgres" or "memory".
	StoreBackend string `yaml:"storeBackend"`
	DatabaseURL  string `yaml:"databaseURL"`

	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	TopK         int `yaml:"topK"`
	EmbedWorkers int `yaml:"embedWorkers"`

	MaxDocuments   int   `yaml:"maxDocuments"`
	MaxSessions    int   `yaml:"maxSessions"`
	MaxMessages    int   `yaml:"maxMessages"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	QueryRateLimitPerMinute int    `yaml:"queryRateLimitPerMinute"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("VECTOR_DIMENSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse VECTOR_DIMENSION: %w", err)
		}
		cfg.EmbeddingDimensions = n
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = 1024
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "postgres"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 150
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 8
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 50
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 50
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.LLMBaseURL == "" {
			return errors.New("config: llmBaseURL is required for the openai provider (set in config.yaml or LLM_BASE_URL)")
		}
		if cfg.LLMAPIKey == "" {
			return errors.New("config: llmAPIKey is required for the openai provider (set in config.yaml or LLM_API_KEY)")
		}
	case "ollama":
		if cfg.OllamaURL == "" {
			return errors.New("config: ollamaURL is required for the ollama provider (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown llmProvider %q", cfg.LLMProvider)
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml or LLM_MODEL)")
	}
	if cfg.EmbeddingModel == "" {
		return errors.New("config: embeddingModel is required (set in config.yaml or EMBEDDING_MODEL)")
	}
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres backend (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storeBackend %q", cfg.StoreBackend)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be smaller than chunkSize")
	}
	return nil
}
