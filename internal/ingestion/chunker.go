// Package ingestion handles document processing: text extraction, chunking,
// and pipeline orchestration into the vector and lexical stores.
package ingestion

import (
	"strings"
	"unicode"
)

// ChunkerConfig controls how documents are split into chunks.
type ChunkerConfig struct {
	// TargetWords is the chunk size in words.
	TargetWords int
	// OverlapWords is how many words consecutive chunks share.
	OverlapWords int
	// Method selects the chunking strategy: "fixed" or "sentence".
	Method string
}

// Chunk is one piece of a split document. Index values are dense and
// zero-based so that adjacent chunks of a document have adjacent indexes.
type Chunk struct {
	Content string
	Index   int
}

// Chunker splits document text into overlapping chunks.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a Chunker, applying defaults for unset fields.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.TargetWords <= 0 {
		config.TargetWords = 500
	}
	if config.OverlapWords < 0 {
		config.OverlapWords = 50
	}
	if config.OverlapWords >= config.TargetWords {
		config.OverlapWords = config.TargetWords / 2
	}
	if config.Method == "" {
		config.Method = "fixed"
	}
	return &Chunker{config: config}
}

// Chunk splits content using the configured method.
func (c *Chunker) Chunk(content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	switch c.config.Method {
	case "sentence":
		return c.chunkSentence(content)
	default:
		return c.chunkFixed(content)
	}
}

// chunkFixed splits content into fixed-size word windows with overlap.
func (c *Chunker) chunkFixed(content string) []Chunk {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	step := c.config.TargetWords - c.config.OverlapWords
	if step <= 0 {
		step = 1
	}

	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.config.TargetWords
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, Chunk{
			Content: strings.Join(words[i:end], " "),
			Index:   len(chunks),
		})

		if end >= len(words) {
			break
		}
	}

	return chunks
}

// chunkSentence groups whole sentences until the target size is reached,
// carrying trailing sentences forward as overlap.
func (c *Chunker) chunkSentence(content string) []Chunk {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Content: strings.TrimSpace(strings.Join(current, " ")),
			Index:   len(chunks),
		})
		current, currentWords = c.sentenceOverlap(current)
	}

	for _, sentence := range sentences {
		sentenceWords := len(strings.Fields(sentence))

		// A single oversized sentence falls back to fixed word windows.
		if sentenceWords > c.config.TargetWords {
			flush()
			current = nil
			currentWords = 0
			for _, piece := range c.chunkFixed(sentence) {
				chunks = append(chunks, Chunk{Content: piece.Content, Index: len(chunks)})
			}
			continue
		}

		if currentWords+sentenceWords > c.config.TargetWords && currentWords > 0 {
			flush()
		}

		current = append(current, sentence)
		currentWords += sentenceWords
	}

	if len(current) > 0 && currentWords > 0 {
		chunks = append(chunks, Chunk{
			Content: strings.TrimSpace(strings.Join(current, " ")),
			Index:   len(chunks),
		})
	}

	return chunks
}

// sentenceOverlap returns the trailing sentences to carry into the next chunk.
func (c *Chunker) sentenceOverlap(sentences []string) ([]string, int) {
	if c.config.OverlapWords <= 0 || len(sentences) == 0 {
		return nil, 0
	}

	var overlap []string
	overlapWords := 0
	for i := len(sentences) - 1; i >= 0 && overlapWords < c.config.OverlapWords; i-- {
		words := len(strings.Fields(sentences[i]))
		overlap = append([]string{sentences[i]}, overlap...)
		overlapWords += words
	}
	return overlap, overlapWords
}

// splitSentences splits text on . ! ? boundaries followed by whitespace,
// skipping common abbreviations.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" && !endsWithAbbreviation(sentence) {
					sentences = append(sentences, sentence)
					current.Reset()
				}
			}
		}
	}

	remaining := strings.TrimSpace(current.String())
	if remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}

// endsWithAbbreviation checks if text ends with a common abbreviation
// that should not terminate a sentence.
func endsWithAbbreviation(text string) bool {
	abbreviations := []string{
		"mr.", "mrs.", "ms.", "dr.", "prof.",
		"inc.", "ltd.", "corp.",
		"etc.", "e.g.", "i.e.",
		"vs.", "v.",
		"st.", "ave.", "blvd.",
		"no.", "vol.", "pg.",
	}

	lower := strings.ToLower(text)
	for _, abbr := range abbreviations {
		if strings.HasSuffix(lower, abbr) {
			return true
		}
	}
	return false
}
