package practice

import (
	"errors"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// Domain errors for the attempt state machine.
var (
	ErrInvalidAttempt    = errors.New("practice: invalid attempt")
	ErrNotInProgress     = errors.New("practice: attempt is not in progress")
	ErrNotPending        = errors.New("practice: attempt is not pending confirmation")
	ErrBelowPassingScore = errors.New("practice: attempt is below the passing threshold")
	ErrItemUnknown       = errors.New("practice: item is not part of this attempt")
	ErrItemAlreadyScored = errors.New("practice: item already scored")
	ErrItemOutOfOrder    = errors.New("practice: item is not the current item")
	ErrScoreOutOfRange   = errors.New("practice: score out of range")
)

// AttemptStatus represents the lifecycle state of an attempt.
type AttemptStatus string

const (
	// StatusInProgress - the learner is working through the item list.
	StatusInProgress AttemptStatus = "in_progress"

	// StatusPendingConfirmation - every item is scored but the outcome is
	// not committed. Both passing and failing attempts land here; the
	// learner sees the result before either confirming or declining.
	StatusPendingConfirmation AttemptStatus = "pending_confirmation"

	// StatusPassed - confirmed with a score at or above the threshold.
	StatusPassed AttemptStatus = "passed"

	// StatusFailed - terminal failing outcome. Reported as the prospective
	// outcome of a below-threshold pending attempt; a declined attempt is
	// deleted rather than stored with this status.
	StatusFailed AttemptStatus = "failed"

	// StatusDeclined - transient marker for an attempt being rolled back.
	StatusDeclined AttemptStatus = "declined"
)

// IsActive reports whether an attempt in this status blocks the creation of
// a new attempt for the same (student, kind, vocabulary set).
func (s AttemptStatus) IsActive() bool {
	return s == StatusInProgress || s == StatusPendingConfirmation
}

// Attempt is one complete run through an activity's fixed, ordered item
// list. It is the aggregate root of the practice domain: all counter and
// status transitions go through its methods so the invariants
// (items_completed <= total_items, running_score <= max_possible_score,
// current index tracking completed count) hold by construction.
type Attempt struct {
	ID         shared.AttemptID
	StudentID  shared.StudentID
	VocabSetID shared.VocabSetID
	Kind       ActivityKind

	// AttemptNumber strictly increases per (student, kind, vocab set) and
	// is never reused, even after a decline removes the row.
	AttemptNumber int

	TotalItems       int
	ItemsCompleted   int
	CurrentItemIndex int
	RunningScore     int
	MaxPossibleScore int
	PassingScore     int

	// ItemOrder is the ordered item-id sequence fixed at creation.
	// Resumption always continues at CurrentItemIndex; the order is never
	// reshuffled.
	ItemOrder []shared.ItemID

	// ScoreLedger records the score applied per item.
	ScoreLedger map[shared.ItemID]int

	Status          AttemptStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds int
}

// NewAttempt creates a fresh in-progress attempt over a fixed item order.
func NewAttempt(
	id shared.AttemptID,
	studentID shared.StudentID,
	vocabSetID shared.VocabSetID,
	kind ActivityKind,
	attemptNumber int,
	itemOrder []shared.ItemID,
	maxPossibleScore int,
	passingScore int,
	startedAt time.Time,
) (*Attempt, error) {
	if !id.IsValid() {
		return nil, ErrInvalidAttempt
	}
	if !studentID.IsValid() || !vocabSetID.IsValid() {
		return nil, ErrInvalidAttempt
	}
	if !kind.IsValid() {
		return nil, shared.ErrUnknownActivityKind
	}
	if attemptNumber < 1 {
		return nil, ErrInvalidAttempt
	}
	if len(itemOrder) == 0 {
		return nil, ErrInvalidAttempt
	}
	if maxPossibleScore <= 0 || passingScore <= 0 || passingScore > maxPossibleScore {
		return nil, ErrInvalidAttempt
	}

	order := make([]shared.ItemID, len(itemOrder))
	copy(order, itemOrder)

	return &Attempt{
		ID:               id,
		StudentID:        studentID,
		VocabSetID:       vocabSetID,
		Kind:             kind,
		AttemptNumber:    attemptNumber,
		TotalItems:       len(order),
		ItemOrder:        order,
		ScoreLedger:      make(map[shared.ItemID]int, len(order)),
		MaxPossibleScore: maxPossibleScore,
		PassingScore:     passingScore,
		Status:           StatusInProgress,
		StartedAt:        startedAt,
	}, nil
}

// CurrentItem returns the item id the learner should answer next.
// ok is false once every item is completed.
func (a *Attempt) CurrentItem() (shared.ItemID, bool) {
	if a.CurrentItemIndex >= len(a.ItemOrder) {
		return "", false
	}
	return a.ItemOrder[a.CurrentItemIndex], true
}

// ContainsItem reports whether the item belongs to this attempt's order.
func (a *Attempt) ContainsItem(itemID shared.ItemID) bool {
	for _, id := range a.ItemOrder {
		if id == itemID {
			return true
		}
	}
	return false
}

// ScoreFor returns the recorded score for an item, if one exists.
func (a *Attempt) ScoreFor(itemID shared.ItemID) (int, bool) {
	score, ok := a.ScoreLedger[itemID]
	return score, ok
}

// ApplyScore records the score for the current item and advances the
// attempt. When the last item is scored the attempt transitions to
// pending confirmation regardless of pass or fail: both outcomes require an
// explicit learner-visible confirmation step.
func (a *Attempt) ApplyScore(itemID shared.ItemID, score int, now time.Time) error {
	if a.Status != StatusInProgress {
		return ErrNotInProgress
	}
	if !a.ContainsItem(itemID) {
		return ErrItemUnknown
	}
	if _, scored := a.ScoreLedger[itemID]; scored {
		return ErrItemAlreadyScored
	}
	current, ok := a.CurrentItem()
	if !ok || current != itemID {
		return ErrItemOutOfOrder
	}
	if score < 0 || a.RunningScore+score > a.MaxPossibleScore {
		return ErrScoreOutOfRange
	}

	a.ScoreLedger[itemID] = score
	a.RunningScore += score
	a.ItemsCompleted++
	a.CurrentItemIndex = a.ItemsCompleted

	if a.ItemsCompleted == a.TotalItems {
		a.Status = StatusPendingConfirmation
		completed := now
		a.CompletedAt = &completed
		a.DurationSeconds = int(now.Sub(a.StartedAt).Seconds())
	}
	return nil
}

// RepairLedger re-applies a previously recorded response whose counters
// were lost to a partial failure: the response row exists but the ledger
// and counters never advanced. Returns true when a repair was performed.
func (a *Attempt) RepairLedger(itemID shared.ItemID, score int, now time.Time) (bool, error) {
	if _, scored := a.ScoreLedger[itemID]; scored {
		return false, nil
	}
	if err := a.ApplyScore(itemID, score, now); err != nil {
		return false, err
	}
	return true, nil
}

// IsComplete reports whether every item has been scored.
func (a *Attempt) IsComplete() bool {
	return a.ItemsCompleted == a.TotalItems
}

// Percentage returns the running score as a percentage of the maximum.
func (a *Attempt) Percentage() shared.Percentage {
	return shared.NewPercentage(a.RunningScore, a.MaxPossibleScore)
}

// IsPassing reports whether the running score meets the passing threshold.
func (a *Attempt) IsPassing() bool {
	return a.RunningScore >= a.PassingScore
}

// ProspectiveStatus returns the status a pending attempt would settle into
// if committed: passed at or above threshold, failed below it.
func (a *Attempt) ProspectiveStatus() AttemptStatus {
	if !a.Status.IsActive() {
		return a.Status
	}
	if a.IsPassing() {
		return StatusPassed
	}
	return StatusFailed
}

// ConfirmPassed commits a pending, passing attempt. A failing attempt can
// never be confirmed; it must be declined.
func (a *Attempt) ConfirmPassed() error {
	if a.Status != StatusPendingConfirmation {
		return ErrNotPending
	}
	if !a.IsPassing() {
		return ErrBelowPassingScore
	}
	a.Status = StatusPassed
	return nil
}

// MarkDeclined flags the attempt as being rolled back. The caller is
// expected to delete the row and its responses afterwards.
func (a *Attempt) MarkDeclined() error {
	if a.Status != StatusPendingConfirmation {
		return ErrNotPending
	}
	a.Status = StatusDeclined
	return nil
}

// ItemResponse is the immutable record of one submitted answer. A response
// row is unique per (attempt, item, attempt number); re-delivery of the
// same submission is detected against it and treated as a score lookup.
type ItemResponse struct {
	ID            string
	AttemptID     shared.AttemptID
	StudentID     shared.StudentID
	ItemID        shared.ItemID
	AttemptNumber int
	Answer        map[string]interface{}
	Evaluation    map[string]interface{}
	Score         int
	CreatedAt     time.Time
}

// NewItemResponse creates a response record for a scored submission.
func NewItemResponse(
	id string,
	attempt *Attempt,
	itemID shared.ItemID,
	answer map[string]interface{},
	evaluation map[string]interface{},
	score int,
	createdAt time.Time,
) (*ItemResponse, error) {
	if id == "" || attempt == nil {
		return nil, ErrInvalidAttempt
	}
	if !itemID.IsValid() {
		return nil, ErrItemUnknown
	}
	if score < 0 {
		return nil, ErrScoreOutOfRange
	}
	return &ItemResponse{
		ID:            id,
		AttemptID:     attempt.ID,
		StudentID:     attempt.StudentID,
		ItemID:        itemID,
		AttemptNumber: attempt.AttemptNumber,
		Answer:        answer,
		Evaluation:    evaluation,
		Score:         score,
		CreatedAt:     createdAt,
	}, nil
}
