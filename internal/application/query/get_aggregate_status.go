package query

import (
	"context"
	"errors"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET AGGREGATE STATUS QUERY
// The test-unlock aggregator. Completion facts come exclusively from
// completion records, which exist only through explicit confirmation; an
// in-flight or pending attempt never counts toward the unlock. The unlock
// itself is a pure derivation: at least 3 of the 4 kinds confirmed.
// ══════════════════════════════════════════════════════════════════════════════

// GetAggregateStatusQuery contains the parameters for the aggregator.
type GetAggregateStatusQuery struct {
	// StudentID is the student whose unlock status is requested.
	StudentID string

	// VocabSetID is the vocabulary set.
	VocabSetID string

	// AssignmentID is the classroom assignment context.
	AssignmentID string

	// IncludeActiveSessions also reports which kinds currently hold an
	// active attempt. Informational only; never part of the unlock input.
	IncludeActiveSessions bool
}

// Validate validates the query parameters.
func (q GetAggregateStatusQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("get_aggregate_status: student_id is required")
	}
	if q.VocabSetID == "" {
		return errors.New("get_aggregate_status: vocab_set_id is required")
	}
	if q.AssignmentID == "" {
		return errors.New("get_aggregate_status: assignment_id is required")
	}
	return nil
}

// CompletionDTO is one confirmed activity kind.
type CompletionDTO struct {
	// Kind is the confirmed activity kind.
	Kind string `json:"kind"`

	// BestScore is the best confirmed score for the kind.
	BestScore int `json:"best_score"`

	// Percentage is the best score as a percentage of the maximum.
	Percentage float64 `json:"percentage"`

	// ConfirmedAt is when the kind was first confirmed.
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// GetAggregateStatusResult contains the aggregator output.
type GetAggregateStatusResult struct {
	// StudentID, VocabSetID, AssignmentID echo the query.
	StudentID    string `json:"student_id"`
	VocabSetID   string `json:"vocab_set_id"`
	AssignmentID string `json:"assignment_id"`

	// Completions holds one entry per confirmed kind, oldest first.
	Completions []CompletionDTO `json:"completions"`

	// ConfirmedKinds is the number of distinct confirmed kinds.
	ConfirmedKinds int `json:"confirmed_kinds"`

	// RequiredKinds is the unlock requirement (3 of 4).
	RequiredKinds int `json:"required_kinds"`

	// TestUnlocked is true once ConfirmedKinds reaches RequiredKinds.
	// Monotonic: confirming the fourth kind keeps it true.
	TestUnlocked bool `json:"test_unlocked"`

	// RemainingKinds lists kinds not yet confirmed, canonical order.
	RemainingKinds []string `json:"remaining_kinds,omitempty"`

	// ActiveKinds lists kinds with an attempt currently in flight.
	ActiveKinds []string `json:"active_kinds,omitempty"`

	// GeneratedAt is when this snapshot was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetAggregateStatusHandler handles aggregate status lookups.
type GetAggregateStatusHandler struct {
	completions practice.CompletionRepository
	attempts    practice.AttemptRepository
}

// NewGetAggregateStatusHandler creates a new GetAggregateStatusHandler.
func NewGetAggregateStatusHandler(
	completions practice.CompletionRepository,
	attempts practice.AttemptRepository,
) *GetAggregateStatusHandler {
	return &GetAggregateStatusHandler{
		completions: completions,
		attempts:    attempts,
	}
}

// Handle executes the query.
func (h *GetAggregateStatusHandler) Handle(ctx context.Context, query GetAggregateStatusQuery) (*GetAggregateStatusResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetAggregateStatus", shared.ErrValidation, err.Error(), err)
	}

	studentID, err := shared.NewStudentID(query.StudentID)
	if err != nil {
		return nil, err
	}
	vocabSetID, err := shared.NewVocabSetID(query.VocabSetID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := shared.NewAssignmentID(query.AssignmentID)
	if err != nil {
		return nil, err
	}

	records, err := h.completions.List(ctx, studentID, vocabSetID, assignmentID)
	if err != nil {
		return nil, err
	}

	confirmed := make(map[practice.ActivityKind]bool, len(records))
	result := &GetAggregateStatusResult{
		StudentID:     query.StudentID,
		VocabSetID:    query.VocabSetID,
		AssignmentID:  query.AssignmentID,
		RequiredKinds: practice.TestUnlockRequirement,
		GeneratedAt:   time.Now().UTC(),
	}

	for _, record := range records {
		if confirmed[record.Kind] {
			continue
		}
		confirmed[record.Kind] = true
		result.Completions = append(result.Completions, CompletionDTO{
			Kind:        record.Kind.String(),
			BestScore:   record.BestScore,
			Percentage:  record.Percentage,
			ConfirmedAt: record.ConfirmedAt,
		})
	}

	result.ConfirmedKinds = len(confirmed)
	result.TestUnlocked = result.ConfirmedKinds >= practice.TestUnlockRequirement

	for _, kind := range practice.AllKinds() {
		if !confirmed[kind] {
			result.RemainingKinds = append(result.RemainingKinds, kind.String())
		}
	}

	if query.IncludeActiveSessions {
		result.ActiveKinds = h.activeKinds(ctx, studentID, vocabSetID)
	}

	return result, nil
}

// activeKinds reports which kinds currently hold an active attempt. It reads
// the durable attempt rows rather than the session cache: the cache is never
// authoritative, and a stale pointer must not steer the resume hint. Errors
// are swallowed: this is an informational decoration of the unlock answer.
func (h *GetAggregateStatusHandler) activeKinds(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) []string {
	var active []string
	for _, kind := range practice.AllKinds() {
		attempt, err := h.attempts.GetActive(ctx, studentID, vocabSetID, kind)
		if err != nil || attempt == nil {
			continue
		}
		active = append(active, kind.String())
	}
	return active
}
