// Package types defines the persisted record shapes shared across the
// storage, search, decay, and ingestion packages.
package types

import "time"

// Memory is a single indexed unit: one memory-file section (delimited by an
// anchor, or the whole file when anchor_id is empty) plus the metadata the
// search/decay/ranking pipeline needs. Same id addresses the matching vector
// row in the vec table (see storage invariant #1).
type Memory struct {
	ID int64 `json:"id"`

	SpecFolder string `json:"spec_folder"`
	FilePath   string `json:"file_path"`
	AnchorID   string `json:"anchor_id,omitempty"`

	Title          string   `json:"title"`
	TriggerPhrases []string `json:"trigger_phrases,omitempty"`
	ContentHash    string   `json:"content_hash"`

	EmbeddingModel  string          `json:"embedding_model,omitempty"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`

	ImportanceWeight float64        `json:"importance_weight"`
	ImportanceTier   ImportanceTier `json:"importance_tier"`
	ContextType      ContextType    `json:"context_type"`

	DecayHalfLifeDays float64 `json:"decay_half_life_days"`
	IsPinned          bool    `json:"is_pinned"`

	AccessCount   int64 `json:"access_count"`
	LastAccessed  int64 `json:"last_accessed"` // epoch milliseconds

	CreatedAt string     `json:"created_at"` // ISO-8601, see §6 timestamp discipline
	UpdatedAt string     `json:"updated_at"` // ISO-8601
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Confidence float64 `json:"confidence"`

	RelatedMemories []RelatedMemory `json:"related_memories,omitempty"`

	Channel   string `json:"channel,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Content is the indexed text, stored in the content column of the
	// metadata row; the json:"-" tag keeps it out of JSON encodings of
	// Memory.
	Content string `json:"-"`
}

// RelatedMemory is one entry of a precomputed top-5 neighbor list (C10).
type RelatedMemory struct {
	ID         int64   `json:"id"`
	Similarity float64 `json:"similarity"`
}

// HistoryEvent enumerates the append-only history log's event kinds.
type HistoryEvent string

const (
	HistoryAdd    HistoryEvent = "ADD"
	HistoryUpdate HistoryEvent = "UPDATE"
	HistoryDelete HistoryEvent = "DELETE"
)

// HistoryRecord is one row of the append-only audit/rollback log.
type HistoryRecord struct {
	ID        int64        `json:"id"`
	MemoryID  int64        `json:"memory_id"`
	PrevValue string       `json:"prev_value,omitempty"`
	NewValue  string       `json:"new_value,omitempty"`
	Event     HistoryEvent `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	Actor     string       `json:"actor,omitempty"`
}

// Checkpoint is a named point-in-time snapshot of the memories table; the
// vector table is not part of it.
type Checkpoint struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	SpecFolder     string    `json:"spec_folder,omitempty"`
	Branch         string    `json:"branch,omitempty"`
	MemorySnapshot []byte    `json:"-"`
	FileSnapshot   []byte    `json:"-"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
