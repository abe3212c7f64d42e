// Package lexical provides a client for the external keyword search service.
//
// The service owns the BM25 index and its ranking; this package only ships
// chunks to it at ingest time and pulls ranked candidates from it at query
// time. Search unavailability is a defined, recoverable condition: the
// retrieval pipeline falls back to pure vector search when the service is
// down, so Search errors wrap ErrUnavailable rather than being fatal.
package lexical

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the search service could not be reached or
// returned an unusable response.
var ErrUnavailable = errors.New("lexical search unavailable")

// Hit is one ranked keyword match. The provider returns hits in descending
// score order; tie order is unspecified.
type Hit struct {
	DocumentID string  `json:"document_id"`
	ChunkID    int     `json:"chunk_id"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// IndexChunk is one chunk being written to the keyword index.
type IndexChunk struct {
	DocumentID string   `json:"document_id"`
	ChunkID    int      `json:"chunk_id"`
	Source     string   `json:"source,omitempty"`
	Page       int      `json:"page,omitempty"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
}

// IndexResult reports the outcome of one index write. Ingestion never fails
// on a lexical-index outage; callers decide whether to retry, log, or
// ignore based on this result instead of an exception disappearing into
// control flow.
type IndexResult struct {
	OK     bool
	Reason string
}

// Searcher is the query-time face of the keyword index.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Indexer is the ingest-time face of the keyword index.
type Indexer interface {
	Index(ctx context.Context, chunk IndexChunk) IndexResult
}
