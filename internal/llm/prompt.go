package llm

import (
	"fmt"
	"strings"

	"github.com/kwhuang/manualqa/internal/retrieval"
)

const promptPreamble = `You are an expert assistant for the software manual. Answer my question using only the reference documents below.
If the documents do not contain enough information, say so honestly instead of making something up.
Focus on questions about the manual's subject; politely decline anything unrelated.`

const promptClosing = `Give a detailed, practical answer and cite the reference documents where appropriate.`

// PromptBuilder assembles the grounded prompt sent to the generator. The
// output is deterministic for a given question and result set.
type PromptBuilder struct {
	// MaxDocuments caps how many retrieved results are included.
	MaxDocuments int
}

// NewPromptBuilder creates a builder. maxDocuments <= 0 means the default
// of 5.
func NewPromptBuilder(maxDocuments int) *PromptBuilder {
	if maxDocuments <= 0 {
		maxDocuments = 5
	}
	return &PromptBuilder{MaxDocuments: maxDocuments}
}

// Build renders the prompt: a fixed preamble, the top results as enumerated
// document blocks, the question verbatim, and a closing instruction.
func (b *PromptBuilder) Build(question string, results []retrieval.Result) string {
	selected := results
	if len(selected) > b.MaxDocuments {
		selected = selected[:b.MaxDocuments]
	}

	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("\n\nReference documents:\n")
	for i, r := range selected {
		fmt.Fprintf(&sb, "[Document %d] Source: %s (similarity %.3f)\nContent:\n%s\n\n", i+1, r.Chunk.Source, r.Similarity, r.Chunk.Content)
	}
	fmt.Fprintf(&sb, "My question is: %s\n\n", question)
	sb.WriteString(promptClosing)
	return sb.String()
}
