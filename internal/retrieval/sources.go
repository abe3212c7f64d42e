package retrieval

import (
	"sort"
	"strconv"

	"github.com/askbase/askbase/internal/vectorstore"
)

// excerptChars is the fixed excerpt length for citations. Citations never
// carry full chunk text.
const excerptChars = 200

// Citation is the externally visible projection of an evidence chunk.
type Citation struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Source     string `json:"source,omitempty"`
	Page       int    `json:"page,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// RankSources orders the evidence set into citations and truncates to topK.
//
// Centers are preferred citations: every is_center record ranks before
// every non-center record, even when a neighbor scores numerically higher.
// Within each group, ordering is by descending score, where the score falls
// back from evidence score to center score to zero — the plain-vector
// fallback path produces records without full hybrid provenance. Duplicate
// identities keep their first occurrence.
func RankSources(chunks []EvidenceChunk, topK int) []Citation {
	if topK <= 0 || len(chunks) == 0 {
		return []Citation{}
	}

	ordered := make([]EvidenceChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].IsCenter != ordered[j].IsCenter {
			return ordered[i].IsCenter
		}
		return scoreOf(ordered[i]) > scoreOf(ordered[j])
	})

	type identity struct {
		doc   string
		chunk string
	}

	seen := make(map[identity]struct{}, len(ordered))
	citations := make([]Citation, 0, topK)

	for _, chunk := range ordered {
		key := identity{doc: trimDocID(chunk.Key.DocumentID), chunk: chunkIDString(chunk)}
		if key.doc == "" {
			key.doc = "unknown"
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		citations = append(citations, Citation{
			DocumentID: key.doc,
			ChunkID:    key.chunk,
			Source:     chunk.Source,
			Page:       chunk.Page,
			Snippet:    excerpt(chunk.Text),
		})

		if len(citations) >= topK {
			break
		}
	}

	return citations
}

// scoreOf resolves the ranking key. A chunk carrying center provenance was
// scored by the assembler, so its evidence score is authoritative even at
// exactly 0.0 — distance decay can land there legitimately. Without that
// provenance the score falls back from evidence score to center score to
// zero; the fallback keys off absence, not the value.
func scoreOf(chunk EvidenceChunk) float64 {
	if chunk.Center != (vectorstore.ChunkKey{}) {
		return chunk.EvidenceScore
	}
	if chunk.EvidenceScore != 0 {
		return chunk.EvidenceScore
	}
	return chunk.CenterScore
}

// chunkIDString normalizes a chunk id for the citation key: integer form
// when the id parsed, raw stored form otherwise.
func chunkIDString(chunk EvidenceChunk) string {
	if chunk.Key.ChunkID != vectorstore.SentinelChunkID {
		return strconv.Itoa(chunk.Key.ChunkID)
	}
	if chunk.RawChunkID != "" {
		return chunk.RawChunkID
	}
	return "unknown"
}

// excerpt returns at most excerptChars characters of text.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptChars {
		return text
	}
	return string(runes[:excerptChars])
}
