package retrieval

import (
	"sort"

	"github.com/askbase/askbase/internal/vectorstore"
)

// center is one selected center with its fused confidence score.
type center struct {
	key   vectorstore.ChunkKey
	chunk vectorstore.StoredChunk
	score float64
}

// selectCenters picks which fused candidates seed neighborhood expansion.
//
// Candidates are sorted descending by fused score (stable, so ties keep
// their original order). Those whose score is at least relThreshold times
// the best score survive; a best score of 0.0 keeps everything, since the
// batch carries no discriminative signal. The survivors are truncated to
// maxCenters, keeping at least one whenever any candidate exists.
//
// Hard-keep rule: the top lexical hit's identity always appears in the
// final set, even when it fails the threshold. Lexical matches are a
// trustworthy literal signal that must never be silently dropped. It is
// appended if room remains, otherwise it replaces the weakest selection.
func selectCenters(candidates []fusedCandidate, topLexical vectorstore.ChunkKey, haveTopLexical bool, maxCenters int, relThreshold float64) []center {
	if len(candidates) == 0 {
		return nil
	}
	if maxCenters < 1 {
		maxCenters = 1
	}

	ranked := make([]fusedCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].fused > ranked[j].fused
	})

	best := ranked[0].fused
	var kept []fusedCandidate
	for _, c := range ranked {
		if best == 0.0 || c.fused/best >= relThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		kept = ranked[:1]
	}
	if len(kept) > maxCenters {
		kept = kept[:maxCenters]
	}

	if haveTopLexical && !containsKey(kept, topLexical) {
		if must, ok := findByKey(ranked, topLexical); ok {
			if len(kept) < maxCenters {
				kept = append(kept, must)
			} else {
				weakest := 0
				for i := 1; i < len(kept); i++ {
					if kept[i].fused < kept[weakest].fused {
						weakest = i
					}
				}
				kept[weakest] = must
			}
		}
	}

	centers := make([]center, len(kept))
	for i, c := range kept {
		centers[i] = center{key: c.chunk.Key, chunk: c.chunk, score: c.fused}
	}
	return centers
}

func containsKey(candidates []fusedCandidate, key vectorstore.ChunkKey) bool {
	for _, c := range candidates {
		if c.chunk.Key == key {
			return true
		}
	}
	return false
}

func findByKey(candidates []fusedCandidate, key vectorstore.ChunkKey) (fusedCandidate, bool) {
	for _, c := range candidates {
		if c.chunk.Key == key {
			return c, true
		}
	}
	return fusedCandidate{}, false
}
