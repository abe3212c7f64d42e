package retrieval

import (
	"context"
	"testing"

	"github.com/askbase/askbase/internal/vectorstore"
)

func TestWindowKeys(t *testing.T) {
	tests := []struct {
		name        string
		center      vectorstore.ChunkKey
		window      int
		includeSelf bool
		expected    []int
	}{
		{
			name:        "interior center",
			center:      vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 5},
			window:      2,
			includeSelf: true,
			expected:    []int{3, 4, 5, 6, 7},
		},
		{
			name:        "boundary discards negative ids",
			center:      vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 0},
			window:      2,
			includeSelf: true,
			expected:    []int{0, 1, 2},
		},
		{
			name:        "boundary at one",
			center:      vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 1},
			window:      2,
			includeSelf: true,
			expected:    []int{0, 1, 2, 3},
		},
		{
			name:        "without self",
			center:      vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 5},
			window:      1,
			includeSelf: false,
			expected:    []int{4, 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := windowKeys(tt.center, tt.window, tt.includeSelf)
			if len(keys) != len(tt.expected) {
				t.Fatalf("expected %d keys, got %d: %v", len(tt.expected), len(keys), keys)
			}
			for i, key := range keys {
				if key.ChunkID != tt.expected[i] {
					t.Errorf("key %d = %d, expected %d", i, key.ChunkID, tt.expected[i])
				}
				if key.DocumentID != tt.center.DocumentID {
					t.Errorf("key %d crossed documents: %q", i, key.DocumentID)
				}
			}
		})
	}
}

func TestFetchWindow_SortsAndFilters(t *testing.T) {
	store := &fakeStore{
		fetch: map[vectorstore.ChunkKey]vectorstore.StoredChunk{
			{DocumentID: "doc", ChunkID: 4}: storedChunk("doc", 4, nil),
			{DocumentID: "doc", ChunkID: 6}: storedChunk("doc", 6, nil),
			{DocumentID: "doc", ChunkID: 5}: storedChunk("doc", 5, nil),
		},
	}
	// A record claiming a different document must be dropped even if the
	// store returns it.
	store.extra = []vectorstore.StoredChunk{storedChunk("other", 5, nil)}

	e := NewEngine(store, nil, DefaultConfig())

	neighbors, err := e.fetchWindow(context.Background(), vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 5})
	if err != nil {
		t.Fatalf("fetchWindow: %v", err)
	}

	if len(neighbors) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(neighbors))
	}
	for i := 1; i < len(neighbors); i++ {
		if neighbors[i-1].Key.ChunkID >= neighbors[i].Key.ChunkID {
			t.Errorf("neighbors not ascending: %v then %v", neighbors[i-1].Key, neighbors[i].Key)
		}
	}
}

func TestFetchWindow_MissingNeighborsAreSkipped(t *testing.T) {
	// Only the center exists; a sparse window is smaller, not an error.
	store := &fakeStore{
		fetch: map[vectorstore.ChunkKey]vectorstore.StoredChunk{
			{DocumentID: "doc", ChunkID: 0}: storedChunk("doc", 0, nil),
		},
	}

	e := NewEngine(store, nil, DefaultConfig())

	neighbors, err := e.fetchWindow(context.Background(), vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 0})
	if err != nil {
		t.Fatalf("fetchWindow: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Key.ChunkID != 0 {
		t.Errorf("expected just the center, got %v", neighbors)
	}
}
