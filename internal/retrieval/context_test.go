package retrieval

import (
	"strings"
	"testing"
)

func evidenceText(texts ...string) []EvidenceChunk {
	chunks := make([]EvidenceChunk, len(texts))
	for i, text := range texts {
		chunks[i] = EvidenceChunk{Text: text}
	}
	return chunks
}

func TestBuildContext_Labels(t *testing.T) {
	got := BuildContext(evidenceText("alpha", "beta"), 1000)

	want := "[Chunk 1]\nalpha\n\n[Chunk 2]\nbeta\n"
	if got != want {
		t.Errorf("BuildContext() = %q, want %q", got, want)
	}
}

func TestBuildContext_SkipsBlankChunks(t *testing.T) {
	got := BuildContext(evidenceText("alpha", "   ", "beta"), 1000)

	if strings.Contains(got, "[Chunk 2]\n\n") {
		t.Errorf("blank chunk was emitted: %q", got)
	}
	// Labels reflect position in the evidence set, so the chunk after the
	// blank keeps its original number.
	if !strings.Contains(got, "[Chunk 3]\nbeta") {
		t.Errorf("expected beta under its positional label, got %q", got)
	}
}

func TestBuildContext_WholeChunksOnly(t *testing.T) {
	// First part is "[Chunk 1]\n" + 80 chars + "\n" = 91 chars. A budget
	// of 100 fits it but not the second chunk, which must be dropped
	// whole rather than truncated.
	long := strings.Repeat("a", 80)
	got := BuildContext(evidenceText(long, "tail"), 100)

	if !strings.Contains(got, long) {
		t.Fatal("first chunk missing")
	}
	if strings.Contains(got, "tail") {
		t.Error("second chunk should have been dropped whole")
	}
}

func TestBuildContext_SeparatorCountsAgainstBudget(t *testing.T) {
	// Each wrapped part is "[Chunk N]\n" + 39 chars + "\n" = 50 chars. The
	// two parts alone sum to exactly 100, but joining them costs one more
	// character, so a budget of 100 keeps only the first part.
	text := strings.Repeat("a", 39)
	chunks := evidenceText(text, text)

	got := BuildContext(chunks, 100)
	if len(got) > 100 {
		t.Fatalf("context exceeds budget: %d > 100", len(got))
	}
	if len(got) != 50 {
		t.Errorf("expected only the first part (50 chars), got %d: %q", len(got), got)
	}

	// One more character of budget fits both parts and their separator.
	got = BuildContext(chunks, 101)
	if len(got) != 101 {
		t.Errorf("expected both parts under a 101-char budget, got %d", len(got))
	}
}

func TestBuildContext_TrimsWhitespace(t *testing.T) {
	got := BuildContext(evidenceText("  padded  "), 1000)
	want := "[Chunk 1]\npadded\n"
	if got != want {
		t.Errorf("BuildContext() = %q, want %q", got, want)
	}
}

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil, 1000); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if got := BuildContext(evidenceText("", "  "), 1000); got != "" {
		t.Errorf("expected empty context for blank chunks, got %q", got)
	}
}
