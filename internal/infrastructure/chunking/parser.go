// Package chunking splits extracted text into sentence nodes. Each node
// carries the sentence itself plus a window of surrounding sentences that the
// answer generator uses as grounding context.
package chunking

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

type SentenceWindowParser struct {
	WindowSize int
}

func NewSentenceWindowParser(windowSize int) *SentenceWindowParser {
	if windowSize < 0 {
		windowSize = 0
	}
	return &SentenceWindowParser{WindowSize: windowSize}
}

func (p *SentenceWindowParser) Parse(doc *domain.Document, text string) []domain.Node {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	nodes := make([]domain.Node, 0, len(sentences))
	for i, sentence := range sentences {
		start := i - p.WindowSize
		if start < 0 {
			start = 0
		}
		end := i + p.WindowSize + 1
		if end > len(sentences) {
			end = len(sentences)
		}

		nodes = append(nodes, domain.Node{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Index:      i,
			Text:       sentence,
			Window:     strings.Join(sentences[start:end], " "),
			Metadata:   map[string]string{"mime_type": doc.MimeType},
		})
	}
	return nodes
}

// splitSentences breaks text on terminal punctuation followed by whitespace.
// Blank-line separated fragments without punctuation become their own
// sentences so tables and headings still index.
func splitSentences(text string) []string {
	var sentences []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		sentences = append(sentences, splitBlock(block)...)
	}
	return sentences
}

func splitBlock(block string) []string {
	var out []string
	var current strings.Builder

	runes := []rune(block)
	for i, r := range runes {
		current.WriteRune(r)
		if !isTerminal(r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := normalizeWhitespace(current.String())
		if sentence != "" {
			out = append(out, sentence)
		}
		current.Reset()
	}
	if tail := normalizeWhitespace(current.String()); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
