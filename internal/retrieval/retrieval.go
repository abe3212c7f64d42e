// Package retrieval implements hybrid retrieval with evidence fusion.
//
// The pipeline merges keyword (lexical) candidates with vector similarity
// over the same chunks, selects a small set of high-confidence "center"
// chunks, expands each center into a contiguous window of surrounding chunks
// from the same document, then deduplicates and scores the result into a
// citable evidence set:
//
//	lexical candidates -> fetch centers -> fuse scores -> select centers
//	-> stitch neighborhoods -> assemble evidence
//
// Two fallbacks keep the pipeline total: if the keyword index is down, empty,
// or none of its candidates resolve in the vector store, retrieval degrades
// to a plain nearest-neighbor search; and a caller-supplied document filter
// bypasses hybrid fusion entirely, since fusion is corpus-wide by
// construction and meaningless once scope is pre-narrowed.
//
// All knobs are fixed at construction through Config. The engine holds no
// per-query state; everything it produces lives and dies within one call.
package retrieval

import (
	"context"
	"log/slog"
	"sync"

	"github.com/askbase/askbase/internal/lexical"
	"github.com/askbase/askbase/internal/vectorstore"
)

// Defaults for Config. Zero fields are replaced by these in NewEngine.
const (
	DefaultLexicalK        = 50
	DefaultCenterK         = 3
	DefaultRelThreshold    = 0.85
	DefaultWindow          = 2
	DefaultMaxChunks       = 30
	DefaultFusionAlpha     = 0.6
	DefaultDistancePenalty = 0.02

	// defaultFetchConcurrency bounds concurrent neighborhood fetches.
	defaultFetchConcurrency = 4
)

// Config holds the retrieval knobs. The engine is deterministic given its
// inputs and this configuration.
type Config struct {
	// LexicalK is how many keyword candidates to pull per query.
	LexicalK int

	// CenterK caps how many centers are selected.
	CenterK int

	// RelThreshold keeps candidates whose fused score is at least this
	// fraction of the best fused score.
	RelThreshold float64

	// Window is the half-window of neighbors stitched around each center.
	Window int

	// MaxChunks caps the assembled evidence set across all centers.
	MaxChunks int

	// FusionAlpha weighs normalized cosine against normalized lexical
	// score: fused = alpha*cos + (1-alpha)*lex.
	FusionAlpha float64

	// DistancePenalty is subtracted from a center's score per chunk of
	// distance when scoring its neighbors.
	DistancePenalty float64
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		LexicalK:        DefaultLexicalK,
		CenterK:         DefaultCenterK,
		RelThreshold:    DefaultRelThreshold,
		Window:          DefaultWindow,
		MaxChunks:       DefaultMaxChunks,
		FusionAlpha:     DefaultFusionAlpha,
		DistancePenalty: DefaultDistancePenalty,
	}
}

// ChunkStore is the subset of vector store operations the engine needs.
type ChunkStore interface {
	// Fetch looks up chunks by deterministic key, silently omitting keys
	// absent from the store.
	Fetch(ctx context.Context, keys []vectorstore.ChunkKey) ([]vectorstore.StoredChunk, error)

	// Search performs nearest-neighbor search, optionally scoped to one
	// document.
	Search(ctx context.Context, vector []float32, limit int, documentID string) ([]vectorstore.StoredChunk, error)
}

// EvidenceChunk is one chunk of the assembled evidence set. It exists only
// for the duration of one query.
type EvidenceChunk struct {
	Key        vectorstore.ChunkKey
	RawChunkID string
	Text       string
	Source     string
	Page       int

	// IsCenter marks the center chunk of its neighborhood. Fallback
	// results have no center semantics and leave it false.
	IsCenter   bool
	Center     vectorstore.ChunkKey
	CenterRank int

	// Distance is |chunk_id - center chunk_id| within the document.
	Distance int

	CenterScore   float64
	EvidenceScore float64
}

// Counters are the per-query observability counters.
type Counters struct {
	LexicalHits     int
	CentersSelected int
	EvidenceChunks  int
}

// Evidence is the output of one retrieval pass, consumed independently by
// the context builder and the source ranker.
type Evidence struct {
	Chunks   []EvidenceChunk
	Counters Counters
}

// Engine runs the hybrid retrieval pipeline.
type Engine struct {
	store            ChunkStore
	lexical          lexical.Searcher
	cfg              Config
	logger           *slog.Logger
	fetchConcurrency int
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFetchConcurrency bounds concurrent neighborhood fetches.
func WithFetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fetchConcurrency = n
		}
	}
}

// NewEngine creates a retrieval engine over a chunk store and a lexical
// searcher. Zero-valued Config fields get defaults.
func NewEngine(store ChunkStore, searcher lexical.Searcher, cfg Config, opts ...Option) *Engine {
	if cfg.LexicalK <= 0 {
		cfg.LexicalK = DefaultLexicalK
	}
	if cfg.CenterK <= 0 {
		cfg.CenterK = DefaultCenterK
	}
	if cfg.RelThreshold <= 0 {
		cfg.RelThreshold = DefaultRelThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if cfg.FusionAlpha <= 0 || cfg.FusionAlpha > 1 {
		cfg.FusionAlpha = DefaultFusionAlpha
	}
	if cfg.DistancePenalty <= 0 {
		cfg.DistancePenalty = DefaultDistancePenalty
	}

	e := &Engine{
		store:            store,
		lexical:          searcher,
		cfg:              cfg,
		logger:           slog.Default(),
		fetchConcurrency: defaultFetchConcurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Retrieve runs the full pipeline for one query. topK is the caller's
// requested result count, used by the fallback paths. A non-empty documentID
// bypasses hybrid fusion in favor of a document-scoped vector search.
func (e *Engine) Retrieve(ctx context.Context, question string, queryVector []float32, topK int, documentID string) (*Evidence, error) {
	if documentID != "" {
		return e.vectorOnly(ctx, queryVector, topK, documentID, Counters{})
	}

	// 1) Lexical candidates. Unavailability is non-fatal: degrade to pure
	// vector search.
	hits, err := e.lexical.Search(ctx, question, e.cfg.LexicalK)
	if err != nil {
		e.logger.Warn("lexical search failed, falling back to vector search", "error", err)
		hits = nil
	}

	counters := Counters{LexicalHits: len(hits)}
	if len(hits) == 0 {
		return e.vectorOnly(ctx, queryVector, topK, "", counters)
	}

	// 2) Resolve candidate chunks in the vector store by deterministic key.
	keys := candidateKeys(hits)
	stored, err := e.store.Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		e.logger.Warn("no lexical candidate resolved in vector store", "requested", len(keys))
		return e.vectorOnly(ctx, queryVector, topK, "", counters)
	}

	// 3) Fuse cosine and lexical signals, then pick centers.
	candidates := fuseCandidates(queryVector, stored, hits, e.cfg.FusionAlpha)
	if len(candidates) == 0 {
		return e.vectorOnly(ctx, queryVector, topK, "", counters)
	}

	topLex, haveTopLex := topLexicalKey(hits)
	centers := selectCenters(candidates, topLex, haveTopLex, e.cfg.CenterK, e.cfg.RelThreshold)
	counters.CentersSelected = len(centers)

	e.logger.Debug("selected centers", "count", len(centers))

	// 4) Stitch neighborhoods and assemble the evidence set.
	neighborhoods := e.fetchNeighborhoods(ctx, centers)
	chunks := assembleEvidence(centers, neighborhoods, e.cfg.MaxChunks, e.cfg.DistancePenalty)
	if len(chunks) == 0 {
		return e.vectorOnly(ctx, queryVector, topK, "", counters)
	}

	counters.EvidenceChunks = len(chunks)
	return &Evidence{Chunks: chunks, Counters: counters}, nil
}

// vectorOnly is the plain nearest-neighbor path, used both for the
// document-scoped bypass and for every hybrid fallback.
func (e *Engine) vectorOnly(ctx context.Context, queryVector []float32, topK int, documentID string, counters Counters) (*Evidence, error) {
	results, err := e.store.Search(ctx, queryVector, topK, documentID)
	if err != nil {
		return nil, err
	}

	chunks := make([]EvidenceChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, EvidenceChunk{
			Key:           r.Key,
			RawChunkID:    r.RawChunkID,
			Text:          r.Text,
			Source:        r.Source,
			Page:          r.Page,
			EvidenceScore: float64(r.Score),
		})
	}

	counters.EvidenceChunks = len(chunks)
	return &Evidence{Chunks: chunks, Counters: counters}, nil
}

// candidateKeys extracts deduplicated chunk keys from lexical hits,
// preserving rank order. Hits with negative chunk ids are dropped.
func candidateKeys(hits []lexical.Hit) []vectorstore.ChunkKey {
	seen := make(map[vectorstore.ChunkKey]struct{}, len(hits))
	keys := make([]vectorstore.ChunkKey, 0, len(hits))

	for _, h := range hits {
		if h.ChunkID < 0 {
			continue
		}
		key := vectorstore.ChunkKey{DocumentID: trimDocID(h.DocumentID), ChunkID: h.ChunkID}
		if key.DocumentID == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys
}

// topLexicalKey returns the identity of the provider's top-ranked hit, or
// ok=false when no hit carries a usable identity.
func topLexicalKey(hits []lexical.Hit) (vectorstore.ChunkKey, bool) {
	for _, h := range hits {
		if h.ChunkID < 0 || trimDocID(h.DocumentID) == "" {
			continue
		}
		return vectorstore.ChunkKey{DocumentID: trimDocID(h.DocumentID), ChunkID: h.ChunkID}, true
	}
	return vectorstore.ChunkKey{}, false
}

// fetchNeighborhoods fetches each center's window concurrently. The fetches
// are independent read-only lookups; assembly order is fixed by center rank
// afterward, so completion order never affects output. A failed fetch leaves
// a nil neighborhood, which reads as a failed expansion for that center.
func (e *Engine) fetchNeighborhoods(ctx context.Context, centers []center) [][]vectorstore.StoredChunk {
	neighborhoods := make([][]vectorstore.StoredChunk, len(centers))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.fetchConcurrency)

	for i, c := range centers {
		wg.Add(1)
		go func(idx int, c center) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			neighbors, err := e.fetchWindow(ctx, c.key)
			if err != nil {
				e.logger.Warn("neighborhood fetch failed",
					"document_id", c.key.DocumentID,
					"chunk_id", c.key.ChunkID,
					"error", err,
				)
				return
			}
			neighborhoods[idx] = neighbors
		}(i, c)
	}

	wg.Wait()
	return neighborhoods
}
