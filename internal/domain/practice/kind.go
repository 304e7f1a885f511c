// Package practice contains domain entities and business logic for the
// practice-attempt lifecycle: attempts, per-item responses, progress
// aggregation, and the confirmation gate. This is a pure domain layer with
// zero external dependencies.
package practice

import (
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ActivityKind identifies one of the four practice activities a vocabulary
// set can be exercised with. All four share one attempt lifecycle; the kind
// only selects the descriptor and the external capabilities.
type ActivityKind string

const (
	KindStoryBuilder ActivityKind = "story_builder"
	KindConceptMap   ActivityKind = "concept_map"
	KindPuzzlePath   ActivityKind = "puzzle_path"
	KindFillBlank    ActivityKind = "fill_blank"
)

// AllKinds returns the four activity kinds in their canonical order.
func AllKinds() []ActivityKind {
	return []ActivityKind{KindStoryBuilder, KindConceptMap, KindPuzzlePath, KindFillBlank}
}

// IsValid checks if the kind is one of the four known activities.
func (k ActivityKind) IsValid() bool {
	switch k {
	case KindStoryBuilder, KindConceptMap, KindPuzzlePath, KindFillBlank:
		return true
	}
	return false
}

// String returns the string representation.
func (k ActivityKind) String() string {
	return string(k)
}

// ParseKind parses a string into an ActivityKind.
func ParseKind(s string) (ActivityKind, error) {
	k := ActivityKind(s)
	if !k.IsValid() {
		return "", shared.ErrUnknownActivityKind
	}
	return k, nil
}

// PassingThresholdPct is the fixed passing threshold applied to every
// activity kind: an attempt passes at 70% of its maximum possible score.
const PassingThresholdPct = 70.0

// TestUnlockRequirement is the number of confirmed activity kinds required
// before the downstream test becomes available (3 of 4).
const TestUnlockRequirement = 3

// Descriptor is the static per-kind configuration: how many items an
// attempt serves, how each item is scored, and the passing threshold.
// The item count is a default for the generator; the authoritative total
// for an attempt is the length of the generated item list.
type Descriptor struct {
	Kind         ActivityKind
	Label        string
	ItemCount    int // default number of items per attempt
	ItemMaxScore int // per-item score ceiling the evaluator is bounded by
}

// MaxPossibleScore returns the maximum score for an attempt with the given
// number of items.
func (d Descriptor) MaxPossibleScore(totalItems int) int {
	return totalItems * d.ItemMaxScore
}

// PassingScore returns the minimum running score required to pass an
// attempt with the given number of items (70% of max, rounded up).
func (d Descriptor) PassingScore(totalItems int) int {
	max := d.MaxPossibleScore(totalItems)
	// ceil(max * 70 / 100) without floating point
	return (max*int(PassingThresholdPct) + 99) / 100
}

// ClampScore bounds an evaluator score to this kind's per-item range.
func (d Descriptor) ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > d.ItemMaxScore {
		return d.ItemMaxScore
	}
	return score
}

// descriptors is the static registry for the four activity kinds.
var descriptors = map[ActivityKind]Descriptor{
	KindStoryBuilder: {
		Kind:         KindStoryBuilder,
		Label:        "Story Builder",
		ItemCount:    5,
		ItemMaxScore: 10,
	},
	KindConceptMap: {
		Kind:         KindConceptMap,
		Label:        "Concept Map",
		ItemCount:    8,
		ItemMaxScore: 5,
	},
	KindPuzzlePath: {
		Kind:         KindPuzzlePath,
		Label:        "Puzzle Path",
		ItemCount:    5,
		ItemMaxScore: 4,
	},
	KindFillBlank: {
		Kind:         KindFillBlank,
		Label:        "Fill in the Blank",
		ItemCount:    10,
		ItemMaxScore: 2,
	},
}

// DescriptorFor returns the descriptor for a kind.
func DescriptorFor(kind ActivityKind) (Descriptor, error) {
	d, ok := descriptors[kind]
	if !ok {
		return Descriptor{}, shared.ErrUnknownActivityKind
	}
	return d, nil
}
