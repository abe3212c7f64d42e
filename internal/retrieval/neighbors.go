package retrieval

import (
	"context"
	"sort"

	"github.com/askbase/askbase/internal/vectorstore"
)

// windowKeys computes the deterministic keys of the chunks in the window
// [chunk_id-window .. chunk_id+window] around a center. Offsets that would
// produce a negative chunk id are discarded outright; there is no
// wraparound and no clamping. Neighbor math never crosses documents: every
// key shares the center's document id.
func windowKeys(c vectorstore.ChunkKey, window int, includeSelf bool) []vectorstore.ChunkKey {
	keys := make([]vectorstore.ChunkKey, 0, 2*window+1)
	for off := -window; off <= window; off++ {
		if off == 0 && !includeSelf {
			continue
		}
		id := c.ChunkID + off
		if id < 0 {
			continue
		}
		keys = append(keys, vectorstore.ChunkKey{DocumentID: c.DocumentID, ChunkID: id})
	}
	return keys
}

// fetchWindow looks up one center's neighborhood in the store. Keys absent
// from the store are silently skipped: a center near a document boundary
// yields a smaller neighborhood, not an error. The result is sorted
// ascending by chunk id so context stays contiguous.
func (e *Engine) fetchWindow(ctx context.Context, c vectorstore.ChunkKey) ([]vectorstore.StoredChunk, error) {
	keys := windowKeys(c, e.cfg.Window, true)
	if len(keys) == 0 {
		return nil, nil
	}

	chunks, err := e.store.Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}

	// Drop anything whose stored identity does not belong to this window.
	// The fetch is by deterministic key, so mismatches mean malformed
	// payloads; they are skipped, not fatal.
	neighbors := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Key.DocumentID != c.DocumentID || chunk.Key.ChunkID < 0 {
			continue
		}
		neighbors = append(neighbors, chunk)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Key.ChunkID < neighbors[j].Key.ChunkID
	})

	return neighbors, nil
}
