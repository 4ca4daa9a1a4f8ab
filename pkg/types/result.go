package types

// HitSource identifies which retrieval produced a hit
type HitSource string

const (
	SourceDense  HitSource = "dense"
	SourceSparse HitSource = "sparse"
	SourceMemory HitSource = "memory"
)

// RetrievalHit is an ephemeral result record produced by the hybrid
// query engine. Hits from multiple sources that share an ID are merged
// into a single hit carrying every contributing source.
type RetrievalHit struct {
	// ID is a chunk ID for code hits or a turn ID for memory hits.
	ID string

	// Sources lists every retrieval that surfaced this candidate.
	Sources []HitSource

	// RawScores holds the backend score per source, pre-normalization.
	RawScores map[HitSource]float64

	// FusedScore is assigned by the fusion step.
	FusedScore float64

	// Payload carries the stored metadata for presentation.
	Payload Payload
}

// Payload is the metadata stored alongside a vector point.
type Payload struct {
	FilePath     string    `json:"file_path,omitempty"`
	SymbolName   string    `json:"symbol_name,omitempty"`
	ParentSymbol string    `json:"parent_symbol,omitempty"`
	Kind         ChunkKind `json:"kind,omitempty"`
	StartLine    int       `json:"start_line,omitempty"`
	EndLine      int       `json:"end_line,omitempty"`
	SourceText   string    `json:"source_text,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Language     string    `json:"language,omitempty"`

	// Memory turn fields
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// HasSource reports whether the hit was surfaced by the given retrieval.
func (h *RetrievalHit) HasSource(src HitSource) bool {
	for _, s := range h.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// AddSource records a contributing retrieval and its raw score.
func (h *RetrievalHit) AddSource(src HitSource, raw float64) {
	if h.RawScores == nil {
		h.RawScores = make(map[HitSource]float64, 3)
	}
	if !h.HasSource(src) {
		h.Sources = append(h.Sources, src)
	}
	h.RawScores[src] = raw
}
