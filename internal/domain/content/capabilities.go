package content

import (
	"context"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// Evaluation is the scored outcome of one submitted answer. Score is
// bounded by the item's per-kind maximum; Fallback marks a deterministic
// substitute produced when the external evaluator was unavailable.
type Evaluation struct {
	Score     int    `json:"score"`
	Feedback  string `json:"feedback"`
	Rationale string `json:"rationale"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// AsMap returns the evaluation as a generic payload for response storage.
func (e Evaluation) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"score":     e.Score,
		"feedback":  e.Feedback,
		"rationale": e.Rationale,
	}
	if e.Fallback {
		m["fallback"] = true
	}
	return m
}

// FallbackEvaluation returns the deterministic minimal-score evaluation
// substituted when the evaluator fails or times out. The learner-facing
// flow must never stall because an external service is unavailable.
func FallbackEvaluation() Evaluation {
	return Evaluation{
		Score:    0,
		Feedback: "Your answer was recorded, but it could not be scored automatically.",
		Fallback: true,
	}
}

// ValidationResult is the outcome of a raw-input shape check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Generator produces the ordered item list for a (vocabulary set, kind)
// pair. Idempotent per vocabulary set.
type Generator interface {
	GenerateItems(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) ([]Item, error)
}

// Evaluator scores a submitted answer against an item. Implementations
// must honor the context deadline; callers substitute FallbackEvaluation
// on failure.
type Evaluator interface {
	EvaluateItem(ctx context.Context, kind practice.ActivityKind, item Item, answer map[string]interface{}, evalContext map[string]interface{}) (Evaluation, error)
}

// InputValidator checks the shape of a raw answer before evaluation.
// Pure - no side effects.
type InputValidator interface {
	ValidateInput(kind practice.ActivityKind, rawAnswer map[string]interface{}) ValidationResult
}

// ItemStore is the durable generate-once storage for item sets.
type ItemStore interface {
	// GetItemSet returns the stored set for the pair. Returns an error
	// matching shared.ErrNotFound when none has been generated yet.
	GetItemSet(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*ItemSet, error)

	// SaveItemSet stores a generated set. Concurrent saves for the same
	// pair converge on the first writer.
	SaveItemSet(ctx context.Context, set *ItemSet) error
}
