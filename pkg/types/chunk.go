package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ChunkKind represents the kind of code chunk
type ChunkKind string

const (
	ChunkModule   ChunkKind = "module"
	ChunkClass    ChunkKind = "class"
	ChunkFunction ChunkKind = "function"
	ChunkBlock    ChunkKind = "block"
)

// chunkNamespace seeds deterministic chunk IDs. Changing it invalidates
// every previously indexed collection.
var chunkNamespace = uuid.MustParse("9a1b3c64-52de-4f0a-8f7e-6c2d0b7a4e19")

// Chunk represents a retrievable unit of source code.
//
// A chunk's ID is derived from its file path, symbol path, and kind only,
// so an unchanged definition keeps the same ID across re-ingestion runs.
// ContentHash tracks whether the text behind an ID has changed.
type Chunk struct {
	// Identification
	ID           string
	Kind         ChunkKind
	FilePath     string
	SymbolName   string
	ParentSymbol string // weak reference to an enclosing symbol, lookup only

	// Location and content
	StartLine   int
	EndLine     int
	SourceText  string
	ContentHash [32]byte // SHA-256 of SourceText
	Language    string
	DocComment  string
}

// SymbolPath returns the dotted symbol path including the parent, if any.
func (c *Chunk) SymbolPath() string {
	if c.ParentSymbol != "" {
		return c.ParentSymbol + "." + c.SymbolName
	}
	return c.SymbolName
}

// ComputeID derives the deterministic chunk identifier from
// (file path, symbol path, kind). Line numbers and content are
// deliberately excluded so edits keep the ID stable.
func (c *Chunk) ComputeID() string {
	key := fmt.Sprintf("%s::%s::%s", c.FilePath, c.SymbolPath(), c.Kind)
	c.ID = uuid.NewSHA1(chunkNamespace, []byte(key)).String()
	return c.ID
}

// ComputeContentHash computes the SHA-256 hash of the chunk source text
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.SourceText))
}

// HashHex returns the content hash as a hex string for payloads and manifests.
func (c *Chunk) HashHex() string {
	return hex.EncodeToString(c.ContentHash[:])
}

// ValidateKind checks if the chunk kind is valid
func (c *Chunk) ValidateKind() error {
	switch c.Kind {
	case ChunkModule, ChunkClass, ChunkFunction, ChunkBlock:
		return nil
	default:
		return errors.New("invalid chunk kind")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.SourceText == "" {
		return errors.New("chunk source text cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	if err := c.ValidateKind(); err != nil {
		return err
	}

	if c.FilePath == "" {
		return errors.New("file path is required")
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	return nil
}
