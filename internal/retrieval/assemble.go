package retrieval

import "github.com/askbase/askbase/internal/vectorstore"

// assembleEvidence merges the per-center neighborhoods into one evidence
// set. Centers are processed in descending-confidence order; within a
// center, neighbors are emitted ascending by chunk id. A chunk already
// emitted by an earlier (higher-confidence) center is skipped — first
// writer wins globally, so a shared neighbor is attributed to exactly one
// center. Each chunk is scored by distance decay from its center:
//
//	evidence_score = center_score - distance * penalty
//
// Emission stops across all centers the moment maxChunks is reached;
// the in-progress center's partial emission is kept.
func assembleEvidence(centers []center, neighborhoods [][]vectorstore.StoredChunk, maxChunks int, penalty float64) []EvidenceChunk {
	seen := make(map[vectorstore.ChunkKey]struct{})
	out := make([]EvidenceChunk, 0, maxChunks)

	for rank, c := range centers {
		for _, neighbor := range neighborhoods[rank] {
			if _, dup := seen[neighbor.Key]; dup {
				continue
			}
			seen[neighbor.Key] = struct{}{}

			distance := neighbor.Key.ChunkID - c.key.ChunkID
			if distance < 0 {
				distance = -distance
			}

			out = append(out, EvidenceChunk{
				Key:           neighbor.Key,
				RawChunkID:    neighbor.RawChunkID,
				Text:          neighbor.Text,
				Source:        neighbor.Source,
				Page:          neighbor.Page,
				IsCenter:      neighbor.Key.ChunkID == c.key.ChunkID,
				Center:        c.key,
				CenterRank:    rank,
				Distance:      distance,
				CenterScore:   c.score,
				EvidenceScore: c.score - float64(distance)*penalty,
			})

			if len(out) >= maxChunks {
				return out
			}
		}
	}

	return out
}
