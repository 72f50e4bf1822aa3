// Package chunker splits document text into bounded-size retrieval units.
package chunker

import "strings"

// DefaultMaxSize is the default maximum chunk length in characters.
const DefaultMaxSize = 500

// Chunker splits text into chunks of at most maxSize characters, breaking
// on sentence boundaries where feasible. Splitting is deterministic:
// identical input always yields the identical chunk sequence, which keeps
// chunk IDs stable across re-syncs of unchanged content.
type Chunker struct {
	maxSize int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxSize sets the maximum chunk length in characters.
func WithMaxSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSize returns the configured maximum chunk length.
func (c *Chunker) MaxSize() int {
	return c.maxSize
}

// Split divides text into ordered chunks. Whole sentences are packed
// greedily into each chunk; a single sentence longer than the maximum is
// hard-split on character boundaries. No chunk is empty, and text with no
// extractable content yields zero chunks.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range sentences {
		runes := []rune(sentence)

		// Oversized sentence: flush what we have and hard-split it.
		if len(runes) > c.maxSize {
			flush()
			for start := 0; start < len(runes); start += c.maxSize {
				end := start + c.maxSize
				if end > len(runes) {
					end = len(runes)
				}
				piece := strings.TrimSpace(string(runes[start:end]))
				if piece != "" {
					chunks = append(chunks, piece)
				}
			}
			continue
		}

		// +1 for the joining space between sentences.
		needed := len(runes)
		if currentLen > 0 {
			needed++
		}
		if currentLen+needed > c.maxSize {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += len(runes)
	}
	flush()

	return chunks
}

// splitSentences splits text on common sentence terminators and newlines,
// keeping any unterminated trailing text as a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
