package rag

import (
	"context"
	"fmt"
	"strings"
)

// NoContextMarker substitutes for the context block when retrieval and
// compression left nothing to answer from.
const NoContextMarker = "No relevant context found."

const generationPrompt = `Context: %s

Question: %s

Instructions: Answer the question based on the provided context. If the context doesn't contain enough information, clearly state this limitation. Be concise but comprehensive.

Answer:`

// Generator produces the candidate answer from compressed context.
type Generator struct {
	llm   LanguageModel
	model string
}

func NewGenerator(llm LanguageModel, model string) *Generator {
	return &Generator{llm: llm, model: model}
}

// Generate joins the context fragments and issues one low-temperature
// completion. No retry at this layer.
func (g *Generator) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	contextText := NoContextMarker
	if len(contexts) > 0 {
		contextText = strings.Join(contexts, "\n\n")
	}
	out, err := g.llm.Complete(ctx, g.model, fmt.Sprintf(generationPrompt, contextText, query), CompletionOptions{
		Temperature: 0.1,
	})
	if err != nil {
		return "", upstream("answer generation failed", err)
	}
	return out, nil
}
