// Package vectorstore provides chunk storage and vector similarity search.
//
// Chunks are addressed by a deterministic key "{document_id}::{chunk_id}" so
// that exact chunks and their neighbors can be fetched back by position. All
// coercion of externally stored payload values (chunk ids, missing document
// ids) happens inside the store implementation; callers only ever see typed
// keys and scalars.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnavailable indicates the vector store could not be reached.
// There is no fallback for this: both the hybrid and the plain-vector
// paths need the store, so callers surface it.
var ErrUnavailable = errors.New("vector store unavailable")

// SentinelChunkID marks a chunk whose stored chunk_id could not be parsed
// as an integer. Records carrying it keep their raw id for citation keys
// but are excluded from neighbor math.
const SentinelChunkID = -1

// ChunkKey identifies a chunk by document and position. ChunkID is dense
// and zero-based within its document; it is only meaningful relative to
// other chunks of the same DocumentID.
type ChunkKey struct {
	DocumentID string
	ChunkID    int
}

// String renders the deterministic point key "{document_id}::{chunk_id}".
func (k ChunkKey) String() string {
	return PointKey(k.DocumentID, k.ChunkID)
}

// PointKey builds the deterministic key used to address chunks in the store.
func PointKey(documentID string, chunkID int) string {
	return fmt.Sprintf("%s::%d", strings.TrimSpace(documentID), chunkID)
}

// ParseChunkID coerces an externally supplied chunk id to an integer.
// Unparseable values yield SentinelChunkID and ok=false; the raw string is
// the caller's to keep.
func ParseChunkID(raw string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 0 {
		return SentinelChunkID, false
	}
	return id, true
}

// Chunk is a chunk being written to the store.
type Chunk struct {
	Key    ChunkKey
	Text   string
	Source string
	Page   int
	Tags   string
	Vector []float32
}

// StoredChunk is a chunk read back from the store, either by point lookup
// or by similarity search. Score is only set on search results. RawChunkID
// preserves the stored form when it could not be coerced to an integer
// (Key.ChunkID is SentinelChunkID in that case).
type StoredChunk struct {
	Key        ChunkKey
	RawChunkID string
	Text       string
	Source     string
	Page       int
	Tags       string
	Vector     []float32
	Score      float32
}

// Store defines the operations the pipeline needs from a vector store.
type Store interface {
	// EnsureCollection creates the chunk collection if it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert writes chunks with their embeddings.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Fetch looks up chunks by their deterministic keys. Keys absent from
	// the store are silently omitted from the result.
	Fetch(ctx context.Context, keys []ChunkKey) ([]StoredChunk, error)

	// Search performs nearest-neighbor search by query vector. A non-empty
	// documentID restricts results to that document.
	Search(ctx context.Context, vector []float32, limit int, documentID string) ([]StoredChunk, error)

	// DeleteDocument removes all chunks belonging to a document.
	DeleteDocument(ctx context.Context, documentID string) error
}
