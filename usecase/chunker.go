package usecase

import (
	"strings"
)

// sentenceChunker accumulates streamed reply text and hands out complete
// sentences, so synthesis can begin before the language model finishes.
// A boundary is sentence punctuation followed by whitespace; the trailing
// fragment stays buffered until flush.
type sentenceChunker struct {
	buf strings.Builder
}

func (c *sentenceChunker) push(delta string) []string {
	c.buf.WriteString(delta)

	content := c.buf.String()
	var sentences []string

	lastEnd := 0
	for i := 0; i < len(content)-1; i++ {
		if !isSentenceEnd(content[i]) || !isWhitespace(content[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(content[lastEnd : i+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		lastEnd = i + 1
	}

	if lastEnd > 0 {
		c.buf.Reset()
		c.buf.WriteString(content[lastEnd:])
	}

	return sentences
}

// flush returns whatever is still buffered and resets the chunker.
func (c *sentenceChunker) flush() string {
	remainder := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	return remainder
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}
