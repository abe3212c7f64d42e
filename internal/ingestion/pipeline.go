package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/askbase/askbase/internal/embedder"
	"github.com/askbase/askbase/internal/lexical"
	"github.com/askbase/askbase/internal/vectorstore"
)

// Document is the input to an ingestion run.
type Document struct {
	// DocumentID is the logical document key used for chunk identity.
	DocumentID string
	// Source is a human-readable origin (filename, URL).
	Source string
	// Filename and ContentType drive format detection for text extraction.
	Filename    string
	ContentType string
	// Content is the raw document bytes.
	Content []byte
	// Page is an optional page number carried into chunk payloads.
	Page int
	// Tags is an optional comma-separated label list.
	Tags string
}

// Result reports what one ingestion run did. Characters is the size of the
// extracted text. IndexedOK and IndexedFailed count keyword-index writes; a
// failed write never fails the run.
type Result struct {
	DocumentID    string
	ChunkCount    int
	Characters    int
	IndexedOK     int
	IndexedFailed int
}

// Pipeline turns raw documents into embedded chunks in the vector store,
// with a best-effort write-through to the keyword index.
type Pipeline struct {
	chunker  *Chunker
	embedder embedder.Embedder
	store    vectorstore.Store
	indexer  lexical.Indexer
	pool     *ants.Pool
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline) error

// WithChunkerConfig overrides the default chunking configuration.
func WithChunkerConfig(config ChunkerConfig) PipelineOption {
	return func(p *Pipeline) error {
		p.chunker = NewChunker(config)
		return nil
	}
}

// WithIndexer enables write-through to a keyword index. Without it the
// pipeline only writes the vector store.
func WithIndexer(indexer lexical.Indexer) PipelineOption {
	return func(p *Pipeline) error {
		p.indexer = indexer
		return nil
	}
}

// WithPoolSize sets the worker pool size for keyword-index writes.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) PipelineOption {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithPipelineLogger sets a custom logger. Default is slog.Default().
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(emb embedder.Embedder, store vectorstore.Store, opts ...PipelineOption) (*Pipeline, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunker:  NewChunker(ChunkerConfig{}),
		embedder: emb,
		store:    store,
		pool:     pool,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			pool.Release()
			return nil, err
		}
	}

	return p, nil
}

// Ingest extracts, chunks, embeds, and stores one document. Chunk ids are
// dense and zero-based so neighbor lookups at query time can stitch windows
// by integer offset. Vector-store failures abort the run; keyword-index
// failures are counted in the result and logged.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if doc.DocumentID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	text, err := ExtractText(doc.Content, doc.Filename, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return &Result{DocumentID: doc.DocumentID, Characters: len(text)}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]vectorstore.Chunk, len(chunks))
	for i, chunk := range chunks {
		points[i] = vectorstore.Chunk{
			Key:    vectorstore.ChunkKey{DocumentID: doc.DocumentID, ChunkID: chunk.Index},
			Text:   chunk.Content,
			Source: doc.Source,
			Page:   doc.Page,
			Tags:   doc.Tags,
			Vector: vectors[i],
		}
	}

	if err := p.store.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("upserting chunks: %w", err)
	}

	result := &Result{
		DocumentID: doc.DocumentID,
		ChunkCount: len(chunks),
		Characters: len(text),
	}
	result.IndexedOK, result.IndexedFailed = p.indexChunks(ctx, doc, chunks)

	p.logger.Info("document ingested",
		"document_id", doc.DocumentID,
		"chunks", result.ChunkCount,
		"characters", result.Characters,
		"indexed_ok", result.IndexedOK,
		"indexed_failed", result.IndexedFailed)

	return result, nil
}

// indexChunks writes chunks to the keyword index on the worker pool and
// tallies the per-chunk outcomes.
func (p *Pipeline) indexChunks(ctx context.Context, doc Document, chunks []Chunk) (ok, failed int) {
	if p.indexer == nil {
		return 0, 0
	}

	tags := splitTags(doc.Tags)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			res := p.indexer.Index(ctx, lexical.IndexChunk{
				DocumentID: doc.DocumentID,
				ChunkID:    chunk.Index,
				Source:     doc.Source,
				Page:       doc.Page,
				Text:       chunk.Content,
				Tags:       tags,
			})

			mu.Lock()
			defer mu.Unlock()
			if res.OK {
				ok++
			} else {
				failed++
				p.logger.Warn("keyword index write failed",
					"document_id", doc.DocumentID,
					"chunk_id", chunk.Index,
					"reason", res.Reason)
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failed++
			mu.Unlock()
			p.logger.Warn("keyword index submit failed",
				"document_id", doc.DocumentID,
				"chunk_id", chunk.Index,
				"err", err)
		}
	}

	wg.Wait()
	return ok, failed
}

// splitTags parses a comma-separated label list into clean tags.
func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Delete removes a document's chunks from the vector store.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document chunks: %w", err)
	}
	return nil
}

// Release releases the worker pool. The pipeline must not be used after
// calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
