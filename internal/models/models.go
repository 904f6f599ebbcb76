package models

import "time"

// EncodedState is the codec's compact, self-contained representation of one
// chunk. Dict maps dictionary slots back to the byte strings they stand for;
// States is the ordered symbol sequence referencing Dict (or literal bytes).
// NMax is the orbital bound the encoder was configured with: it caps how many
// dictionary slots the encoder may allocate, never what it can represent.
type EncodedState struct {
	NMax   int      `json:"nMax"`
	Dict   []string `json:"dict"`
	States []uint32 `json:"states"`
}

// Chunk is one contiguous, independently retrievable unit of a library.
// Content is the canonical decoded text; it may be empty when the chunk was
// loaded from storage, in which case it is materialized from State on demand.
type Chunk struct {
	ID          string       `json:"id"`
	Index       int          `json:"index"`
	Content     string       `json:"content,omitempty"`
	State       EncodedState `json:"state"`
	ContentHash string       `json:"contentHash"`
	WordCount   int          `json:"wordCount"`
	CharCount   int          `json:"charCount"`
}

// Library aggregates ordered chunks under a caller-chosen unique name.
// Chunk order is insertion order and is significant for positional context.
type Library struct {
	Name      string    `json:"name"`
	NMax      int       `json:"nMax"`
	Chunks    []*Chunk  `json:"chunks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// aggregates; recomputed after any mutation, never summed inline at
	// call sites
	ChunkCount       int     `json:"chunkCount"`
	TotalWords       int     `json:"totalWords"`
	OriginalBytes    int64   `json:"originalBytes"`
	EncodedBytes     int64   `json:"encodedBytes"`
	CompressionRatio float64 `json:"compressionRatio"`
}

// RetrievedChunk is one ranked retrieval candidate surfaced to callers.
type RetrievedChunk struct {
	Library   string  `json:"library"`
	ChunkID   string  `json:"chunkID"`
	Index     int     `json:"index"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
	WordCount int     `json:"wordCount"`
}

// IntegrityReport summarizes a verification pass over a library.
// An empty library is vacuously fully verified (0/0 counts as 100%).
type IntegrityReport struct {
	Library     string   `json:"library"`
	Verified    int      `json:"verifiedChunks"`
	Failed      int      `json:"failedChunks"`
	Percentage  float64  `json:"integrityPercentage"`
	AllVerified bool     `json:"allVerified"`
	FailedIDs   []string `json:"failedIDs,omitempty"`
}
