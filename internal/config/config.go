// Package config loads engine configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults mirror the knobs the engine was tuned with.
const (
	DefaultStoreURL         = "http://localhost:6333"
	DefaultCodeCollection   = "code"
	DefaultMemoryCollection = "chat_memory"
	DefaultDenseDimension   = 384
	DefaultTopK             = 6
	DefaultTopKMemory       = 3
	DefaultDenseWeight      = 1.0
	DefaultSparseWeight     = 1.0
	DefaultMemoryWeight     = 0.5
	DefaultTokenBudget      = 2048
	DefaultMaxChunkChars    = 1800
	DefaultEmbedBatchSize   = 64
	DefaultWorkers          = 4
)

// StoreMemory is the CODERAG_STORE_URL sentinel that selects the
// in-process vector store instead of a Qdrant server.
const StoreMemory = "memory"

// Config holds engine configuration.
type Config struct {
	// Vector store
	StoreURL         string
	StoreAPIKey      string
	CodeCollection   string
	MemoryCollection string
	DenseDimension   int

	// Embedding backend
	EmbeddingProvider string // "openai" or "local"
	OpenAIAPIKey      string
	OpenAIBaseURL     string // optional OpenAI-compatible endpoint
	EmbeddingModel    string
	EmbedBatchSize    int

	// LLM backend
	LLMProvider string // "openai" or "ollama"
	LLMModel    string
	OllamaURL   string

	// Retrieval
	TopK         int
	TopKMemory   int
	DenseWeight  float64
	SparseWeight float64
	MemoryWeight float64

	// Context assembly
	TokenBudget   int
	MaxChunkChars int

	// Ingestion
	Workers      int
	ManifestPath string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first if present; real environment
// variables win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is not an error

	cfg := &Config{
		StoreURL:          getEnv("CODERAG_STORE_URL", DefaultStoreURL),
		StoreAPIKey:       os.Getenv("CODERAG_STORE_API_KEY"),
		CodeCollection:    getEnv("CODERAG_CODE_COLLECTION", DefaultCodeCollection),
		MemoryCollection:  getEnv("CODERAG_MEMORY_COLLECTION", DefaultMemoryCollection),
		DenseDimension:    getEnvInt("CODERAG_DENSE_DIMENSION", DefaultDenseDimension),
		EmbeddingProvider: getEnv("CODERAG_EMBEDDING_PROVIDER", defaultEmbeddingProvider()),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		EmbeddingModel:    getEnv("CODERAG_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbedBatchSize:    getEnvInt("CODERAG_EMBED_BATCH_SIZE", DefaultEmbedBatchSize),
		LLMProvider:       getEnv("CODERAG_LLM_PROVIDER", "openai"),
		LLMModel:          getEnv("CODERAG_LLM_MODEL", "gpt-4o-mini"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		TopK:              getEnvInt("CODERAG_TOP_K", DefaultTopK),
		TopKMemory:        getEnvInt("CODERAG_TOP_K_MEMORY", DefaultTopKMemory),
		DenseWeight:       getEnvFloat("CODERAG_DENSE_WEIGHT", DefaultDenseWeight),
		SparseWeight:      getEnvFloat("CODERAG_SPARSE_WEIGHT", DefaultSparseWeight),
		MemoryWeight:      getEnvFloat("CODERAG_MEMORY_WEIGHT", DefaultMemoryWeight),
		TokenBudget:       getEnvInt("CODERAG_TOKEN_BUDGET", DefaultTokenBudget),
		MaxChunkChars:     getEnvInt("CODERAG_MAX_CHUNK_CHARS", DefaultMaxChunkChars),
		Workers:           getEnvInt("CODERAG_WORKERS", DefaultWorkers),
		ManifestPath:      getEnv("CODERAG_MANIFEST_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that would corrupt the index or
// produce meaningless retrievals. These are fatal at startup.
func (c *Config) Validate() error {
	if c.DenseDimension <= 0 {
		return fmt.Errorf("dense dimension must be positive, got %d", c.DenseDimension)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.TopK)
	}
	if c.CodeCollection == c.MemoryCollection {
		return fmt.Errorf("code and memory collections must differ, both are %q", c.CodeCollection)
	}
	if c.TokenBudget <= 0 {
		return fmt.Errorf("token budget must be positive, got %d", c.TokenBudget)
	}
	return nil
}

// defaultEmbeddingProvider picks "openai" when a key is present and
// the fully offline "local" provider otherwise.
func defaultEmbeddingProvider() string {
	if os.Getenv("OPENAI_API_KEY") != "" || os.Getenv("OPENAI_BASE_URL") != "" {
		return "openai"
	}
	return "local"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
