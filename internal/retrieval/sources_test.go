package retrieval

import (
	"strings"
	"testing"

	"github.com/askbase/askbase/internal/vectorstore"
)

func evidenceChunk(doc string, id int, isCenter bool, score float64) EvidenceChunk {
	return EvidenceChunk{
		Key:           vectorstore.ChunkKey{DocumentID: doc, ChunkID: id},
		Text:          "some text",
		IsCenter:      isCenter,
		EvidenceScore: score,
	}
}

func TestRankSources_CentersFirst(t *testing.T) {
	chunks := []EvidenceChunk{
		evidenceChunk("doc", 1, false, 0.95), // neighbor outscoring a center
		evidenceChunk("doc", 2, true, 0.60),
		evidenceChunk("doc", 3, false, 0.50),
		evidenceChunk("doc", 4, true, 0.90),
	}

	citations := RankSources(chunks, 10)
	if len(citations) != 4 {
		t.Fatalf("expected 4 citations, got %d", len(citations))
	}

	// Centers by descending score, then non-centers by descending score.
	wantOrder := []string{"4", "2", "1", "3"}
	for i, want := range wantOrder {
		if citations[i].ChunkID != want {
			t.Errorf("citation %d = chunk %s, expected %s", i, citations[i].ChunkID, want)
		}
	}
}

func TestRankSources_TruncatesToTopK(t *testing.T) {
	chunks := []EvidenceChunk{
		evidenceChunk("doc", 0, true, 0.9),
		evidenceChunk("doc", 1, false, 0.8),
		evidenceChunk("doc", 2, false, 0.7),
	}

	citations := RankSources(chunks, 2)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
}

func TestRankSources_DeduplicatesIdentity(t *testing.T) {
	first := evidenceChunk("doc", 1, true, 0.9)
	first.Text = "first occurrence"
	second := evidenceChunk("doc", 1, true, 0.8)
	second.Text = "second occurrence"

	citations := RankSources([]EvidenceChunk{first, second}, 10)
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation after dedup, got %d", len(citations))
	}
	if citations[0].Snippet != "first occurrence" {
		t.Errorf("expected first occurrence kept, got %q", citations[0].Snippet)
	}
}

func TestRankSources_ExcerptLength(t *testing.T) {
	chunk := evidenceChunk("doc", 0, true, 0.9)
	chunk.Text = strings.Repeat("x", 500)

	citations := RankSources([]EvidenceChunk{chunk}, 1)
	if len(citations) != 1 {
		t.Fatal("expected 1 citation")
	}
	if len(citations[0].Snippet) != 200 {
		t.Errorf("snippet length = %d, expected 200", len(citations[0].Snippet))
	}
}

func TestRankSources_SentinelChunkID(t *testing.T) {
	chunk := EvidenceChunk{
		Key:           vectorstore.ChunkKey{DocumentID: "doc", ChunkID: vectorstore.SentinelChunkID},
		RawChunkID:    "intro",
		Text:          "text",
		EvidenceScore: 0.5,
	}

	citations := RankSources([]EvidenceChunk{chunk}, 1)
	if len(citations) != 1 {
		t.Fatal("expected 1 citation")
	}
	if citations[0].ChunkID != "intro" {
		t.Errorf("chunk id = %q, expected raw form %q", citations[0].ChunkID, "intro")
	}
}

func TestRankSources_MissingDocumentID(t *testing.T) {
	chunk := evidenceChunk("", 3, false, 0.5)

	citations := RankSources([]EvidenceChunk{chunk}, 1)
	if len(citations) != 1 {
		t.Fatal("expected 1 citation")
	}
	if citations[0].DocumentID != "unknown" {
		t.Errorf("document id = %q, expected %q", citations[0].DocumentID, "unknown")
	}
}

func TestRankSources_ZeroScoredNeighborNotPromoted(t *testing.T) {
	// A neighbor decayed to exactly 0.0 must rank by that score, not jump
	// ahead on its center's score.
	decayed := evidenceChunk("doc", 5, false, 0.0)
	decayed.Center = vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 3}
	decayed.CenterScore = 0.04

	scored := evidenceChunk("doc", 6, false, 0.02)
	scored.Center = vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 3}
	scored.CenterScore = 0.04

	citations := RankSources([]EvidenceChunk{decayed, scored}, 10)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].ChunkID != "6" || citations[1].ChunkID != "5" {
		t.Errorf("unexpected order: %s, %s", citations[0].ChunkID, citations[1].ChunkID)
	}
}

func TestRankSources_EmptyAndZeroTopK(t *testing.T) {
	if got := RankSources(nil, 5); len(got) != 0 {
		t.Errorf("expected no citations for empty evidence, got %v", got)
	}
	if got := RankSources([]EvidenceChunk{evidenceChunk("doc", 0, true, 0.5)}, 0); len(got) != 0 {
		t.Errorf("expected no citations for topK 0, got %v", got)
	}
}

func TestScoreOf_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		chunk    EvidenceChunk
		expected float64
	}{
		{"evidence score", EvidenceChunk{EvidenceScore: 0.7, CenterScore: 0.9}, 0.7},
		{"center score fallback", EvidenceChunk{CenterScore: 0.9}, 0.9},
		{"zero fallback", EvidenceChunk{}, 0.0},
		{
			// Distance decay can produce exactly 0.0; with center
			// provenance that is a real score, not an absent one.
			"assembled zero evidence score",
			EvidenceChunk{
				Center:        vectorstore.ChunkKey{DocumentID: "doc", ChunkID: 2},
				CenterScore:   0.04,
				EvidenceScore: 0.0,
			},
			0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreOf(tt.chunk); got != tt.expected {
				t.Errorf("scoreOf() = %v, expected %v", got, tt.expected)
			}
		})
	}
}
