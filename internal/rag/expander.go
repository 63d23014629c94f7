package rag

import (
	"context"
	"fmt"
	"log"
)

const hypotheticalDocumentPrompt = `Generate a hypothetical document that would perfectly answer this question: %s

The document should be factual, detailed, and comprehensive. Write as if you're creating the ideal source document that contains the answer.

Hypothetical document:`

const queryVariationsPrompt = `Generate 3 different variations of this query, each focusing on different aspects:

Original query: %s

Provide:
1. A more specific version
2. A broader contextual version
3. A different perspective version

Format as:
Specific: [variation]
Broad: [variation]
Alternative: [variation]`

// Expander builds a hypothetical-document query expansion (HyDE) so the
// retrieval query is richer than the raw question.
type Expander struct {
	llm    LanguageModel
	model  string
	logger *log.Logger
}

func NewExpander(llm LanguageModel, model string, logger *log.Logger) *Expander {
	return &Expander{llm: llm, model: model, logger: logger}
}

// Expand returns the query expansion. With useExpansion false the query
// passes through untouched and no model call is made. Model failures
// propagate to the caller.
func (e *Expander) Expand(ctx context.Context, query string, useExpansion bool) (ExpandedQuery, error) {
	if !useExpansion {
		return ExpandedQuery{Original: query, HypotheticalDocument: query}, nil
	}

	hypothetical, err := e.llm.Complete(ctx, e.model, fmt.Sprintf(hypotheticalDocumentPrompt, query), CompletionOptions{
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return ExpandedQuery{}, upstream("hypothetical document generation failed", err)
	}

	// Variations are logged for observability; retrieval uses only the
	// hypothetical document.
	variations, err := e.llm.Complete(ctx, e.model, fmt.Sprintf(queryVariationsPrompt, query), CompletionOptions{})
	if err != nil {
		return ExpandedQuery{}, upstream("query variation generation failed", err)
	}
	e.logger.Printf("expanded query (%d chars hypothetical, %d chars variations)", len(hypothetical), len(variations))

	return ExpandedQuery{
		Original:             query,
		HypotheticalDocument: hypothetical,
		Variations:           variations,
	}, nil
}
