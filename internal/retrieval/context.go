package retrieval

import (
	"fmt"
	"strings"
)

// DefaultContextBudget is the default character budget for one context
// string.
const DefaultContextBudget = 12000

// BuildContext concatenates evidence chunk texts, in assembler emission
// order, into a single string for the generator. Each chunk is wrapped with
// a 1-based positional label. Accumulation stops the instant the running
// total would exceed maxChars, with the joining separator counted against
// the budget: trailing chunks are dropped whole, never truncated mid-text,
// and the result never exceeds maxChars. Blank and whitespace-only chunks
// are skipped without consuming budget.
func BuildContext(chunks []EvidenceChunk, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextBudget
	}

	var parts []string
	total := 0

	for i, chunk := range chunks {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}

		part := fmt.Sprintf("[Chunk %d]\n%s\n", i+1, text)
		cost := len(part)
		if len(parts) > 0 {
			cost++ // joining "\n"
		}
		if total+cost > maxChars {
			break
		}
		parts = append(parts, part)
		total += cost
	}

	return strings.Join(parts, "\n")
}
