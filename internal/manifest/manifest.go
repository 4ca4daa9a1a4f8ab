package manifest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kestrelhq/coderag/pkg/types"
)

// Entry records one indexed chunk: its deterministic ID, where it came
// from, and the content hash it was indexed with.
type Entry struct {
	ChunkID     string
	FilePath    string
	SymbolPath  string
	Kind        types.ChunkKind
	ContentHash string
}

// EntryFromChunk builds the manifest entry for a chunk.
func EntryFromChunk(c types.Chunk) Entry {
	return Entry{
		ChunkID:     c.ID,
		FilePath:    c.FilePath,
		SymbolPath:  c.SymbolPath(),
		Kind:        c.Kind,
		ContentHash: c.HashHex(),
	}
}

// Store records what the index is believed to contain, keyed by file.
// The reconciler diffs a fresh segmentation against it to compute
// minimal upserts and deletes, and updates it only after the vector
// store has accepted the corresponding writes.
type Store interface {
	// FileEntries returns the recorded chunks for a file, keyed by
	// chunk ID. A file that was never indexed yields an empty map.
	FileEntries(ctx context.Context, filePath string) (map[string]Entry, error)

	// Files returns every file path with at least one recorded chunk.
	Files(ctx context.Context) ([]string, error)

	// ReplaceFile atomically replaces a file's recorded chunks.
	ReplaceFile(ctx context.Context, filePath string, entries []Entry) error

	// DeleteFile removes all recorded chunks for a file.
	DeleteFile(ctx context.Context, filePath string) error

	// Reset drops every record. Used before a rebuild from the store.
	Reset(ctx context.Context) error

	// Counts returns total files and chunks recorded.
	Counts(ctx context.Context) (files int, chunks int, err error)

	// Close releases the underlying database.
	Close() error
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Open opens (creating if necessary) the manifest database at dbPath
// and applies pending migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FileEntries(ctx context.Context, filePath string) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id, file_path, symbol_path, kind, content_hash FROM chunks WHERE file_path = ?",
		filePath)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ChunkID, &e.FilePath, &e.SymbolPath, &kind, &e.ContentHash); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		e.Kind = types.ChunkKind(kind)
		entries[e.ChunkID] = e
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Files(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT file_path FROM chunks ORDER BY file_path")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ReplaceFile(ctx context.Context, filePath string, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (chunk_id, file_path, symbol_path, kind, content_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(chunk_id) DO UPDATE SET
			   file_path = excluded.file_path,
			   symbol_path = excluded.symbol_path,
			   kind = excluded.kind,
			   content_hash = excluded.content_hash,
			   updated_at = CURRENT_TIMESTAMP`,
			e.ChunkID, e.FilePath, e.SymbolPath, string(e.Kind), e.ContentHash)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ChunkID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("delete file chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("reset manifest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (int, int, error) {
	var files, chunks int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT file_path), COUNT(*) FROM chunks").Scan(&files, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return files, chunks, nil
}
