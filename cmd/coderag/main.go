package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kestrelhq/coderag/internal/config"
	"github.com/kestrelhq/coderag/internal/manifest"
	"github.com/kestrelhq/coderag/internal/mcp"
	"github.com/kestrelhq/coderag/internal/source"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "coderag",
		Usage:   "Hybrid code retrieval engine with an MCP server front end",
		Version: fmt.Sprintf("%s (sqlite driver: %s, build mode: %s)", version, manifest.DriverName, manifest.BuildMode),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
			{
				Name:      "index",
				Usage:     "Index a repository tree",
				ArgsUsage: "<path>",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Glob pattern of files to skip (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "include-readme",
						Usage: "Index the root README.md as documentation",
						Value: true,
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Keep running and re-index files as they change",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show index statistics",
				Action: statusCommand,
			},
			{
				Name:   "rebuild-manifest",
				Usage:  "Repopulate the local manifest from the vector store",
				Action: rebuildManifestCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogger routes slog to stderr. Stdout carries the MCP protocol,
// so nothing else may write to it.
func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func newServer() (*mcp.Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return mcp.NewServer(cfg, slog.Default())
}

func serveCommand(c *cli.Context) error {
	srv, err := newServer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("coderag mcp server starting", "version", version, "sqlite_driver", manifest.DriverName)
	return srv.Serve(ctx)
}

func indexCommand(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		return fmt.Errorf("usage: coderag index <path>")
	}
	abs, err := absPath(root)
	if err != nil {
		return err
	}

	srv, err := newServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	walk := source.WalkConfig{
		Exclude:       c.StringSlice("exclude"),
		IncludeReadme: c.Bool("include-readme"),
	}
	stats, err := srv.Index(ctx, abs, walk)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d files (%d unchanged, %d failed, %d deleted)\n",
		stats.FilesIndexed, stats.FilesUnchanged, stats.FilesFailed, stats.FilesDeleted)
	fmt.Printf("Chunks: %d upserted, %d unchanged, %d deleted in %s\n",
		stats.ChunksUpserted, stats.ChunksUnchanged, stats.ChunksDeleted, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintln(os.Stderr, "  warn:", msg)
	}

	if c.Bool("watch") {
		slog.Info("watching for changes", "root", abs)
		return srv.WatchTree(ctx, abs)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	srv, err := newServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	points, files, chunks, err := srv.Status(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Vector points:  %d\n", points)
	fmt.Printf("Indexed files:  %d\n", files)
	fmt.Printf("Indexed chunks: %d\n", chunks)
	return nil
}

func rebuildManifestCommand(c *cli.Context) error {
	srv, err := newServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	n, err := srv.RebuildManifest(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Manifest rebuilt from %d indexed chunks\n", n)
	return nil
}

func absPath(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}
