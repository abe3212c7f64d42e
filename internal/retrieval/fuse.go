package retrieval

import (
	"strings"

	"github.com/askbase/askbase/internal/lexical"
	"github.com/askbase/askbase/internal/vectorstore"
)

// fusedCandidate is one lexical candidate with its raw and fused scores.
// Every candidate carries a lexical score, since all candidates originate
// from the lexical pass.
type fusedCandidate struct {
	chunk   vectorstore.StoredChunk
	cosine  float64
	lexical float64
	fused   float64
}

// fuseCandidates scores each resolved candidate against the query vector,
// then normalizes and linearly combines the cosine and lexical signals:
//
//	fused = alpha*norm(cosine) + (1-alpha)*norm(lexical)
//
// Normalization is independent per-batch min-max scaling of each signal.
// A signal with zero spread (including a single-candidate batch) normalizes
// to 0.0 everywhere, which removes its discriminative power for the batch
// instead of raising an error. Output order is unspecified; callers sort.
func fuseCandidates(queryVector []float32, stored []vectorstore.StoredChunk, hits []lexical.Hit, alpha float64) []fusedCandidate {
	lexByKey := lexicalScoresByKey(hits)

	candidates := make([]fusedCandidate, 0, len(stored))
	for _, chunk := range stored {
		if chunk.Key.ChunkID == vectorstore.SentinelChunkID {
			// No neighbor math is possible without a positional id.
			continue
		}
		candidates = append(candidates, fusedCandidate{
			chunk:   chunk,
			cosine:  CosineSimilarity(queryVector, chunk.Vector),
			lexical: lexByKey[chunk.Key],
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	cosMin, cosMax := candidates[0].cosine, candidates[0].cosine
	lexMin, lexMax := candidates[0].lexical, candidates[0].lexical
	for _, c := range candidates[1:] {
		cosMin = min(cosMin, c.cosine)
		cosMax = max(cosMax, c.cosine)
		lexMin = min(lexMin, c.lexical)
		lexMax = max(lexMax, c.lexical)
	}

	for i := range candidates {
		nc := minMaxNorm(candidates[i].cosine, cosMin, cosMax)
		nl := minMaxNorm(candidates[i].lexical, lexMin, lexMax)
		candidates[i].fused = alpha*nc + (1-alpha)*nl
	}

	return candidates
}

// minMaxNorm scales x into [0,1] over [lo,hi]. Zero spread yields 0.0.
func minMaxNorm(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0.0
	}
	return (x - lo) / (hi - lo)
}

// lexicalScoresByKey maps each candidate identity to its lexical score.
// The provider ranks descending, so on duplicate identities the first
// (highest-scored) occurrence wins.
func lexicalScoresByKey(hits []lexical.Hit) map[vectorstore.ChunkKey]float64 {
	scores := make(map[vectorstore.ChunkKey]float64, len(hits))
	for _, h := range hits {
		if h.ChunkID < 0 {
			continue
		}
		key := vectorstore.ChunkKey{DocumentID: trimDocID(h.DocumentID), ChunkID: h.ChunkID}
		if key.DocumentID == "" {
			continue
		}
		if _, ok := scores[key]; !ok {
			scores[key] = h.Score
		}
	}
	return scores
}

func trimDocID(documentID string) string {
	return strings.TrimSpace(documentID)
}
