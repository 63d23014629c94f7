package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const groundednessPrompt = `Context: %s

Response: %s

Task: Evaluate if the response is fully supported by the provided context. Score from 0.0 to 1.0 where:
- 1.0 = Completely supported by context
- 0.5 = Partially supported
- 0.0 = Not supported or contradicts context

Provide only a single number between 0.0 and 1.0:`

const relevancePrompt = `Query: %s

Response: %s

Task: Rate how well the response answers the query. Score from 0.0 to 1.0 where:
- 1.0 = Perfectly answers the query
- 0.5 = Partially answers the query
- 0.0 = Does not answer the query

Provide only a single number between 0.0 and 1.0:`

const accuracyPrompt = `Context: %s

Response: %s

Task: Check for factual errors or hallucinations in the response. Score from 0.0 to 1.0 where:
- 1.0 = No factual errors, all claims supported
- 0.5 = Minor inaccuracies or unsupported claims
- 0.0 = Significant factual errors or hallucinations

Provide only a single number between 0.0 and 1.0:`

const correctionPrompt = `Query: %s

Context: %s

Original Response: %s

Issues Found:
- Groundedness Score: %.2f
- Relevance Score: %.2f
- Accuracy Score: %.2f

Task: Provide a corrected response that:
1. Is fully grounded in the provided context
2. Directly answers the query
3. Contains no factual errors or hallucinations
4. Is clear and concise

Corrected Response:`

// Thresholds for the derived validation fields.
const (
	correctionThreshold       = 0.7
	highConfidenceThreshold   = 0.8
	mediumConfidenceThreshold = 0.6
)

// fallbackScore is the deliberate moderate/uncertain sub-score used when
// the model returns something non-numeric.
const fallbackScore = 0.5

// Validator scores a candidate answer and, when the score demands it,
// produces a corrected one. Scoring runs on the cheaper preprocessing
// model; corrections run on the main model.
type Validator struct {
	llm            LanguageModel
	mainModel      string
	validatorModel string
}

func NewValidator(llm LanguageModel, mainModel, validatorModel string) *Validator {
	return &Validator{llm: llm, mainModel: mainModel, validatorModel: validatorModel}
}

// Validate issues three independent score completions and derives the
// overall quality, correction flag and confidence level.
func (v *Validator) Validate(ctx context.Context, query, response string, contexts []string) (ValidationScore, error) {
	contextText := strings.Join(contexts, "\n\n")

	groundedness, err := v.scoreCall(ctx, fmt.Sprintf(groundednessPrompt, contextText, response))
	if err != nil {
		return ValidationScore{}, upstream("groundedness check failed", err)
	}
	relevance, err := v.scoreCall(ctx, fmt.Sprintf(relevancePrompt, query, response))
	if err != nil {
		return ValidationScore{}, upstream("relevance check failed", err)
	}
	accuracy, err := v.scoreCall(ctx, fmt.Sprintf(accuracyPrompt, contextText, response))
	if err != nil {
		return ValidationScore{}, upstream("accuracy check failed", err)
	}

	return DeriveScore(groundedness, relevance, accuracy), nil
}

// Correct returns response unchanged (with no model call) when the score
// does not demand correction; otherwise it asks the main model for a
// grounded, on-topic, fact-checked rewrite.
func (v *Validator) Correct(ctx context.Context, query, response string, contexts []string, score ValidationScore) (string, error) {
	if !score.NeedsCorrection {
		return response, nil
	}
	contextText := strings.Join(contexts, "\n\n")
	prompt := fmt.Sprintf(correctionPrompt, query, contextText, response, score.Groundedness, score.Relevance, score.Accuracy)
	out, err := v.llm.Complete(ctx, v.mainModel, prompt, CompletionOptions{})
	if err != nil {
		return "", upstream("correction failed", err)
	}
	return out, nil
}

func (v *Validator) scoreCall(ctx context.Context, prompt string) (float64, error) {
	out, err := v.llm.Complete(ctx, v.validatorModel, prompt, CompletionOptions{})
	if err != nil {
		return 0, err
	}
	return parseScore(out), nil
}

// parseScore turns model output into a sub-score. Unparsable text falls
// back to the moderate 0.5; the result is clamped into [0,1] either way.
func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallbackScore
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DeriveScore clamps the sub-scores and computes the derived fields:
// overall is the arithmetic mean, correction is demanded under 0.7, and
// confidence is high above 0.8, medium above 0.6, low otherwise.
func DeriveScore(groundedness, relevance, accuracy float64) ValidationScore {
	groundedness = clamp01(groundedness)
	relevance = clamp01(relevance)
	accuracy = clamp01(accuracy)
	overall := (groundedness + relevance + accuracy) / 3

	confidence := ConfidenceLow
	switch {
	case overall > highConfidenceThreshold:
		confidence = ConfidenceHigh
	case overall > mediumConfidenceThreshold:
		confidence = ConfidenceMedium
	}

	return ValidationScore{
		Groundedness:    groundedness,
		Relevance:       relevance,
		Accuracy:        accuracy,
		Overall:         overall,
		NeedsCorrection: overall < correctionThreshold,
		ConfidenceLevel: confidence,
	}
}
