package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/askbase/askbase/internal/lexical"
	"github.com/askbase/askbase/internal/vectorstore"
)

// fakeStore is an in-memory ChunkStore for engine tests. Fetch runs on
// concurrent neighborhood goroutines, so call counting is locked.
type fakeStore struct {
	mu sync.Mutex

	fetch map[vectorstore.ChunkKey]vectorstore.StoredChunk
	extra []vectorstore.StoredChunk // returned on every Fetch regardless of keys

	fetchCalls     int
	failFetchAfter int // fail Fetch calls beyond this count (0 = never)

	search    []vectorstore.StoredChunk
	searchErr error

	lastSearchLimit int
	lastSearchDoc   string
	searchCalls     int
}

func (s *fakeStore) Fetch(_ context.Context, keys []vectorstore.ChunkKey) ([]vectorstore.StoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.failFetchAfter > 0 && s.fetchCalls > s.failFetchAfter {
		return nil, errors.New("fetch failed")
	}

	var out []vectorstore.StoredChunk
	for _, key := range keys {
		if chunk, ok := s.fetch[key]; ok {
			out = append(out, chunk)
		}
	}
	out = append(out, s.extra...)
	return out, nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, limit int, documentID string) ([]vectorstore.StoredChunk, error) {
	s.searchCalls++
	s.lastSearchLimit = limit
	s.lastSearchDoc = documentID
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.search) > limit {
		return s.search[:limit], nil
	}
	return s.search, nil
}

// fakeSearcher is a canned lexical.Searcher.
type fakeSearcher struct {
	hits  []lexical.Hit
	err   error
	calls int
}

func (s *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]lexical.Hit, error) {
	s.calls++
	return s.hits, s.err
}

// corpusStore builds a store holding one document with the given chunk
// vectors, keyed by chunk id.
func corpusStore(doc string, vectors map[int][]float32) *fakeStore {
	fetch := make(map[vectorstore.ChunkKey]vectorstore.StoredChunk, len(vectors))
	for id, vec := range vectors {
		chunk := storedChunk(doc, id, vec)
		fetch[chunk.Key] = chunk
	}
	return &fakeStore{fetch: fetch}
}

func TestEngine_HybridHappyPath(t *testing.T) {
	store := corpusStore("doc", map[int][]float32{
		0: {1, 0}, 1: {1, 0}, 2: {1, 0}, 3: {1, 0}, 4: {0, 1}, 5: {0, 1},
	})
	searcher := &fakeSearcher{hits: []lexical.Hit{
		{DocumentID: "doc", ChunkID: 2, Score: 10},
		{DocumentID: "doc", ChunkID: 5, Score: 5},
	}}

	cfg := DefaultConfig()
	cfg.Window = 1
	e := NewEngine(store, searcher, cfg)

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// Chunk 2 fuses to 1.0 (both signals maximal); chunk 5 fuses to 0.0
	// and falls below the relative threshold. One center, window 1.
	if evidence.Counters.LexicalHits != 2 {
		t.Errorf("lexical hits = %d, expected 2", evidence.Counters.LexicalHits)
	}
	if evidence.Counters.CentersSelected != 1 {
		t.Errorf("centers = %d, expected 1", evidence.Counters.CentersSelected)
	}
	if len(evidence.Chunks) != 3 {
		t.Fatalf("evidence chunks = %d, expected 3", len(evidence.Chunks))
	}

	ids := []int{evidence.Chunks[0].Key.ChunkID, evidence.Chunks[1].Key.ChunkID, evidence.Chunks[2].Key.ChunkID}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("unexpected window %v", ids)
	}

	for _, chunk := range evidence.Chunks {
		if chunk.IsCenter != (chunk.Key.ChunkID == 2) {
			t.Errorf("chunk %d IsCenter = %v", chunk.Key.ChunkID, chunk.IsCenter)
		}
	}
}

func TestEngine_HardKeepSurvivesFusion(t *testing.T) {
	// The top lexical hit is cosine-orthogonal to the query and loses the
	// fused ranking, but its identity must still seed a neighborhood.
	store := corpusStore("doc", map[int][]float32{
		0: {1, 0}, 1: {1, 0}, 2: {1, 0}, 7: {0, 1}, 8: {0, 1},
	})
	searcher := &fakeSearcher{hits: []lexical.Hit{
		{DocumentID: "doc", ChunkID: 8, Score: 10},
		{DocumentID: "doc", ChunkID: 1, Score: 1},
	}}

	cfg := DefaultConfig()
	cfg.Window = 1
	e := NewEngine(store, searcher, cfg)

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	var hasLexCenter bool
	for _, chunk := range evidence.Chunks {
		if chunk.IsCenter && chunk.Key.ChunkID == 8 {
			hasLexCenter = true
		}
	}
	if !hasLexCenter {
		t.Error("top lexical hit was not kept as a center")
	}
}

func TestEngine_LexicalErrorFallsBack(t *testing.T) {
	store := &fakeStore{search: []vectorstore.StoredChunk{
		storedChunk("doc", 0, nil),
		storedChunk("doc", 1, nil),
	}}
	searcher := &fakeSearcher{err: lexical.ErrUnavailable}

	e := NewEngine(store, searcher, DefaultConfig())

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 7, "")
	if err != nil {
		t.Fatalf("lexical outage must not fail retrieval: %v", err)
	}

	if store.searchCalls != 1 {
		t.Fatalf("expected one vector search, got %d", store.searchCalls)
	}
	if store.lastSearchLimit != 7 {
		t.Errorf("fallback limit = %d, expected caller topK 7", store.lastSearchLimit)
	}
	if store.lastSearchDoc != "" {
		t.Errorf("fallback unexpectedly scoped to %q", store.lastSearchDoc)
	}
	for _, chunk := range evidence.Chunks {
		if chunk.IsCenter {
			t.Error("fallback results must not carry center semantics")
		}
	}
}

func TestEngine_EmptyLexicalFallsBack(t *testing.T) {
	store := &fakeStore{search: []vectorstore.StoredChunk{storedChunk("doc", 0, nil)}}
	searcher := &fakeSearcher{}

	e := NewEngine(store, searcher, DefaultConfig())

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.searchCalls != 1 || len(evidence.Chunks) != 1 {
		t.Errorf("expected plain vector fallback, searches=%d chunks=%d", store.searchCalls, len(evidence.Chunks))
	}
	if evidence.Counters.LexicalHits != 0 {
		t.Errorf("lexical hits = %d, expected 0", evidence.Counters.LexicalHits)
	}
}

func TestEngine_UnresolvedCandidatesFallBack(t *testing.T) {
	// Lexical returns hits but none resolve in the vector store.
	store := &fakeStore{search: []vectorstore.StoredChunk{storedChunk("doc", 0, nil)}}
	searcher := &fakeSearcher{hits: []lexical.Hit{
		{DocumentID: "ghost", ChunkID: 3, Score: 5},
	}}

	e := NewEngine(store, searcher, DefaultConfig())

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.searchCalls != 1 {
		t.Errorf("expected vector fallback, searchCalls=%d", store.searchCalls)
	}
	if evidence.Counters.LexicalHits != 1 {
		t.Errorf("lexical hits counter = %d, expected 1", evidence.Counters.LexicalHits)
	}
}

func TestEngine_EmptyEvidenceFallsBack(t *testing.T) {
	// Candidate resolution succeeds, but every neighborhood fetch fails,
	// leaving the evidence set empty.
	store := corpusStore("doc", map[int][]float32{2: {1, 0}})
	store.failFetchAfter = 1
	store.search = []vectorstore.StoredChunk{storedChunk("doc", 9, nil)}
	searcher := &fakeSearcher{hits: []lexical.Hit{
		{DocumentID: "doc", ChunkID: 2, Score: 5},
	}}

	e := NewEngine(store, searcher, DefaultConfig())

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.searchCalls != 1 {
		t.Errorf("expected vector fallback after empty evidence, searchCalls=%d", store.searchCalls)
	}
	if len(evidence.Chunks) != 1 || evidence.Chunks[0].Key.ChunkID != 9 {
		t.Errorf("unexpected fallback evidence: %+v", evidence.Chunks)
	}
}

func TestEngine_VectorStoreErrorIsFatal(t *testing.T) {
	store := &fakeStore{searchErr: vectorstore.ErrUnavailable}
	searcher := &fakeSearcher{err: lexical.ErrUnavailable}

	e := NewEngine(store, searcher, DefaultConfig())

	_, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 5, "")
	if err == nil {
		t.Fatal("expected error when the vector store is unavailable")
	}
}

func TestEngine_DocumentFilterBypassesHybrid(t *testing.T) {
	store := &fakeStore{search: []vectorstore.StoredChunk{storedChunk("target", 0, nil)}}
	searcher := &fakeSearcher{hits: []lexical.Hit{
		{DocumentID: "other", ChunkID: 1, Score: 9},
	}}

	e := NewEngine(store, searcher, DefaultConfig())

	evidence, err := e.Retrieve(context.Background(), "question", []float32{1, 0}, 4, "target")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if searcher.calls != 0 {
		t.Error("document-scoped query must not hit the lexical index")
	}
	if store.lastSearchDoc != "target" {
		t.Errorf("search scoped to %q, expected %q", store.lastSearchDoc, "target")
	}
	if store.lastSearchLimit != 4 {
		t.Errorf("search limit = %d, expected 4", store.lastSearchLimit)
	}
	if len(evidence.Chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(evidence.Chunks))
	}
}

func TestCandidateKeys(t *testing.T) {
	hits := []lexical.Hit{
		{DocumentID: "a", ChunkID: 1},
		{DocumentID: "a", ChunkID: 1}, // duplicate
		{DocumentID: "a", ChunkID: -1},
		{DocumentID: "", ChunkID: 2},
		{DocumentID: "b", ChunkID: 0},
	}

	keys := candidateKeys(hits)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != (vectorstore.ChunkKey{DocumentID: "a", ChunkID: 1}) {
		t.Errorf("unexpected first key %v", keys[0])
	}
	if keys[1] != (vectorstore.ChunkKey{DocumentID: "b", ChunkID: 0}) {
		t.Errorf("unexpected second key %v", keys[1])
	}
}

func TestTopLexicalKey(t *testing.T) {
	hits := []lexical.Hit{
		{DocumentID: "", ChunkID: 0},
		{DocumentID: "a", ChunkID: -2},
		{DocumentID: "a", ChunkID: 3},
	}

	key, ok := topLexicalKey(hits)
	if !ok {
		t.Fatal("expected a usable identity")
	}
	if key != (vectorstore.ChunkKey{DocumentID: "a", ChunkID: 3}) {
		t.Errorf("unexpected key %v", key)
	}

	if _, ok := topLexicalKey(nil); ok {
		t.Error("expected ok=false for no hits")
	}
}
