package retrieval

import (
	"math"
	"testing"

	"github.com/askbase/askbase/internal/vectorstore"
)

func neighborhood(doc string, ids ...int) []vectorstore.StoredChunk {
	chunks := make([]vectorstore.StoredChunk, len(ids))
	for i, id := range ids {
		chunks[i] = storedChunk(doc, id, nil)
	}
	return chunks
}

func TestAssembleEvidence_DistanceDecay(t *testing.T) {
	centers := []center{
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 5}, score: 0.9},
	}
	neighborhoods := [][]vectorstore.StoredChunk{
		neighborhood("doc", 3, 4, 5, 6, 7),
	}

	chunks := assembleEvidence(centers, neighborhoods, 30, 0.02)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}

	for _, chunk := range chunks {
		distance := chunk.Key.ChunkID - 5
		if distance < 0 {
			distance = -distance
		}
		expected := 0.9 - float64(distance)*0.02
		if math.Abs(chunk.EvidenceScore-expected) > 1e-9 {
			t.Errorf("chunk %d evidence score = %v, expected %v",
				chunk.Key.ChunkID, chunk.EvidenceScore, expected)
		}

		wantCenter := chunk.Key.ChunkID == 5
		if chunk.IsCenter != wantCenter {
			t.Errorf("chunk %d IsCenter = %v, expected %v", chunk.Key.ChunkID, chunk.IsCenter, wantCenter)
		}
	}

	// Two steps from the center: 0.9 - 2*0.02 = 0.86.
	if math.Abs(chunks[0].EvidenceScore-0.86) > 1e-9 {
		t.Errorf("chunk at distance 2 scored %v, expected 0.86", chunks[0].EvidenceScore)
	}
}

func TestAssembleEvidence_FirstWriterWins(t *testing.T) {
	// Neighborhoods of adjacent centers overlap; the chunk shared by both
	// is attributed to the higher-confidence center only.
	centers := []center{
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 2}, score: 0.9},
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 4}, score: 0.5},
	}
	neighborhoods := [][]vectorstore.StoredChunk{
		neighborhood("doc", 1, 2, 3),
		neighborhood("doc", 3, 4, 5),
	}

	chunks := assembleEvidence(centers, neighborhoods, 30, 0.02)

	counts := make(map[int]int)
	for _, chunk := range chunks {
		counts[chunk.Key.ChunkID]++
	}
	if counts[3] != 1 {
		t.Fatalf("shared chunk 3 emitted %d times, expected 1", counts[3])
	}

	for _, chunk := range chunks {
		if chunk.Key.ChunkID == 3 {
			if chunk.Center.ChunkID != 2 {
				t.Errorf("shared chunk attributed to center %d, expected 2", chunk.Center.ChunkID)
			}
			if math.Abs(chunk.EvidenceScore-(0.9-1*0.02)) > 1e-9 {
				t.Errorf("shared chunk scored %v, expected %v", chunk.EvidenceScore, 0.88)
			}
		}
	}
}

func TestAssembleEvidence_StopsAtCap(t *testing.T) {
	centers := []center{
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 2}, score: 0.9},
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 20}, score: 0.8},
	}
	neighborhoods := [][]vectorstore.StoredChunk{
		neighborhood("doc", 0, 1, 2, 3, 4),
		neighborhood("doc", 18, 19, 20, 21, 22),
	}

	chunks := assembleEvidence(centers, neighborhoods, 6, 0.02)
	if len(chunks) != 6 {
		t.Fatalf("expected exactly 6 chunks at the cap, got %d", len(chunks))
	}

	// The second center's emission is partial: only its first neighbor
	// fits before the cap.
	if chunks[5].Key.ChunkID != 18 {
		t.Errorf("last chunk = %d, expected 18", chunks[5].Key.ChunkID)
	}
}

func TestAssembleEvidence_FailedNeighborhoodContributesNothing(t *testing.T) {
	centers := []center{
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 2}, score: 0.9},
		{key: vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 8}, score: 0.7},
	}
	neighborhoods := [][]vectorstore.StoredChunk{
		nil, // fetch failed for the first center
		neighborhood("doc", 7, 8, 9),
	}

	chunks := assembleEvidence(centers, neighborhoods, 30, 0.02)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks from the surviving center, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.Center.ChunkID != 8 {
			t.Errorf("chunk %d attributed to center %d", chunk.Key.ChunkID, chunk.Center.ChunkID)
		}
	}
}
