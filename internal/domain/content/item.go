// Package content defines the item payloads and the three external
// capabilities the attempt lifecycle consumes: item generation, answer
// evaluation, and raw-input validation. Generation and evaluation live in
// an external service; this package only specifies their boundary.
package content

import (
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// Item is a single question, prompt, puzzle, or sentence a learner
// responds to within an attempt. The answer key is stored alongside the
// payload but never leaves the service; View strips it.
type Item struct {
	ID       shared.ItemID          `json:"id"`
	Kind     practice.ActivityKind  `json:"kind"`
	Position int                    `json:"position"`
	Prompt   string                 `json:"prompt"`
	Payload  map[string]interface{} `json:"payload"`

	// AnswerKey is the evaluator-side solution data. Internal only.
	AnswerKey map[string]interface{} `json:"answer_key,omitempty"`

	MaxScore int `json:"max_score"`
}

// View returns the learner-facing projection of the item with the answer
// key stripped.
func (i Item) View() ItemView {
	return ItemView{
		ID:       i.ID,
		Kind:     i.Kind,
		Position: i.Position,
		Prompt:   i.Prompt,
		Payload:  i.Payload,
		MaxScore: i.MaxScore,
	}
}

// ItemView is the outward-facing item shape: plain data, no answer key.
type ItemView struct {
	ID       shared.ItemID          `json:"id"`
	Kind     practice.ActivityKind  `json:"kind"`
	Position int                    `json:"position"`
	Prompt   string                 `json:"prompt"`
	Payload  map[string]interface{} `json:"payload"`
	MaxScore int                    `json:"max_score"`
}

// ItemSet is a generated, ordered item list for a (vocabulary set, kind)
// pair. Generation is idempotent per vocabulary set: generate once, reuse
// thereafter unless the set changes.
type ItemSet struct {
	VocabSetID  shared.VocabSetID
	Kind        practice.ActivityKind
	Items       []Item
	GeneratedAt time.Time
}

// Order returns the fixed item-id sequence of the set.
func (s ItemSet) Order() []shared.ItemID {
	order := make([]shared.ItemID, len(s.Items))
	for i, item := range s.Items {
		order[i] = item.ID
	}
	return order
}

// ItemByID returns the item with the given id, if present.
func (s ItemSet) ItemByID(id shared.ItemID) (Item, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// MaxPossibleScore sums the per-item maxima of the set.
func (s ItemSet) MaxPossibleScore() int {
	total := 0
	for _, item := range s.Items {
		total += item.MaxScore
	}
	return total
}
