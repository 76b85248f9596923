package ollama

import (
	"fmt"
	"strings"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// buildAnswerPrompt renders retrieved nodes into the grounding context. The
// surrounding window replaces the matched sentence so the model sees enough
// context to answer from.
func buildAnswerPrompt(question string, sources []domain.ScoredNode) string {
	if len(sources) == 0 {
		return fmt.Sprintf(`Answer the user question using only the provided context.
The context is empty: state directly that the indexed documents contain no
information relevant to the question. Do not speculate.

Question:
%s
`, question)
	}

	var contextBuilder strings.Builder
	for idx, source := range sources {
		text := source.Node.Window
		if strings.TrimSpace(text) == "" {
			text = source.Node.Text
		}
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] file=%s score=%.3f\n%s\n\n",
			idx+1,
			source.Node.Filename,
			source.Score,
			text,
		))
	}

	return fmt.Sprintf(`Answer the user question using only the context below.
If the context is insufficient, say so directly instead of guessing.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
