package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kestrelhq/coderag/internal/assembler"
	"github.com/kestrelhq/coderag/internal/config"
	"github.com/kestrelhq/coderag/internal/embedder"
	"github.com/kestrelhq/coderag/internal/indexer"
	"github.com/kestrelhq/coderag/internal/llm"
	"github.com/kestrelhq/coderag/internal/manifest"
	"github.com/kestrelhq/coderag/internal/memory"
	"github.com/kestrelhq/coderag/internal/query"
	"github.com/kestrelhq/coderag/internal/recommend"
	"github.com/kestrelhq/coderag/internal/source"
	"github.com/kestrelhq/coderag/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "coderag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the engine's components.
type Server struct {
	mcp       *server.MCPServer
	cfg       *config.Config
	store     vectorstore.Store
	manifest  manifest.Store
	embed     *embedder.Client
	indexer   *indexer.Indexer
	engine    *query.Engine
	recommend *recommend.Engine
	assemble  *assembler.Assembler
	memory    *memory.Store
	llm       llm.Client // nil when generation is disabled
	logger    *slog.Logger
}

// NewServer wires the whole engine from configuration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	manifestPath := cfg.ManifestPath
	if manifestPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir := filepath.Join(home, ".coderag")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		manifestPath = filepath.Join(dir, "manifest.db")
	}
	man, err := manifest.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	embed, err := embedder.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	idx, err := indexer.New(store, man, embed, indexer.Config{
		Collection:    cfg.CodeCollection,
		Workers:       cfg.Workers,
		MaxChunkChars: cfg.MaxChunkChars,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	mem, err := memory.New(store, embed, memory.Config{
		Collection: cfg.MemoryCollection,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := query.New(store, embed, mem, query.Config{
		Collection: cfg.CodeCollection,
		TopK:       cfg.TopK,
		TopKMemory: cfg.TopKMemory,
		Weights: query.Weights{
			Dense:  cfg.DenseWeight,
			Sparse: cfg.SparseWeight,
			Memory: cfg.MemoryWeight,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	rec, err := recommend.New(store, cfg.CodeCollection)
	if err != nil {
		return nil, err
	}

	asm, err := assembler.New(assembler.Config{
		TokenBudget: cfg.TokenBudget,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	// Generation is optional; retrieval works without it.
	llmClient, err := llm.NewFromConfig(cfg)
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			return nil, err
		}
		logger.Info("llm generation disabled", "reason", err)
		llmClient = nil
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		cfg:       cfg,
		store:     store,
		manifest:  man,
		embed:     embed,
		indexer:   idx,
		engine:    engine,
		recommend: rec,
		assemble:  asm,
		memory:    mem,
		llm:       llmClient,
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

func newStore(cfg *config.Config) (vectorstore.Store, error) {
	if cfg.StoreURL == "" || cfg.StoreURL == config.StoreMemory {
		return vectorstore.NewMemStore(), nil
	}
	return vectorstore.NewQdrantStore(cfg.StoreURL, cfg.StoreAPIKey)
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	if err := s.indexer.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure code collection: %w", err)
	}
	if err := s.memory.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure memory collection: %w", err)
	}

	return server.ServeStdio(s.mcp)
}

// Index reconciles the vector index against the tree under root.
// It backs the CLI index command; the MCP path goes through the
// index_repository tool instead.
func (s *Server) Index(ctx context.Context, root string, walk source.WalkConfig) (*indexer.Statistics, error) {
	if err := s.indexer.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return s.indexer.ReconcileWith(ctx, root, walk)
}

// WatchTree blocks, re-reconciling individual files as they change on
// disk, until the context is canceled.
func (s *Server) WatchTree(ctx context.Context, root string) error {
	return s.indexer.Watch(ctx, root)
}

// RebuildManifest repopulates the manifest from a full collection
// scroll. The manifest is a cache of the vector store, not the other
// way around, so it can always be reconstructed.
func (s *Server) RebuildManifest(ctx context.Context) (int, error) {
	return s.indexer.RebuildManifest(ctx)
}

// Status reports index size: total vector points, indexed files, and
// indexed chunks per the manifest.
func (s *Server) Status(ctx context.Context) (points, files, chunks int, err error) {
	return s.indexer.Status(ctx)
}

// Close releases the manifest database, the vector store client, and
// the embedder.
func (s *Server) Close() {
	if err := s.manifest.Close(); err != nil {
		s.logger.Warn("manifest close failed", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
	_ = s.embed.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(queryCodebaseTool(), s.handleQueryCodebase)
	s.mcp.AddTool(recommendRelatedTool(), s.handleRecommendRelated)
	s.mcp.AddTool(addMemoryTool(), s.handleAddMemory)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
