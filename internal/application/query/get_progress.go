// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Returns the full progress picture for one (student, vocabulary set,
// assignment): per-kind statuses, attempt counts, best scores, and the
// active attempt, if any. Backed by the progress aggregate; the session
// cache is only used to refresh its TTL on the way through.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters for a progress lookup.
type GetProgressQuery struct {
	// StudentID is the student whose progress is requested.
	StudentID string

	// VocabSetID is the vocabulary set.
	VocabSetID string

	// AssignmentID is the classroom assignment context.
	AssignmentID string

	// IncludeActiveAttempt loads the current attempt's position and score.
	IncludeActiveAttempt bool
}

// Validate validates the query parameters.
func (q GetProgressQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("get_progress: student_id is required")
	}
	if q.VocabSetID == "" {
		return errors.New("get_progress: vocab_set_id is required")
	}
	if q.AssignmentID == "" {
		return errors.New("get_progress: assignment_id is required")
	}
	return nil
}

// KindProgressDTO is the per-activity-kind slice of the progress picture.
type KindProgressDTO struct {
	// Kind is the activity kind.
	Kind string `json:"kind"`

	// Label is the display name.
	Label string `json:"label"`

	// Status is the kind's lifecycle status.
	Status string `json:"status"`

	// Confirmed is true when the kind has a confirmed completion.
	Confirmed bool `json:"confirmed"`

	// AttemptCount is the number of attempts ever started, declines included.
	AttemptCount int `json:"attempt_count"`

	// BestScore is the best confirmed score.
	BestScore int `json:"best_score"`
}

// ActiveAttemptDTO is the in-flight attempt snapshot.
type ActiveAttemptDTO struct {
	// AttemptID identifies the attempt.
	AttemptID string `json:"attempt_id"`

	// Kind is the activity kind being played.
	Kind string `json:"kind"`

	// Status is in_progress or pending_confirmation.
	Status string `json:"status"`

	// AttemptNumber is the per-triple sequence number.
	AttemptNumber int `json:"attempt_number"`

	// CurrentItemIndex, ItemsCompleted, TotalItems locate the learner.
	CurrentItemIndex int `json:"current_item_index"`
	ItemsCompleted   int `json:"items_completed"`
	TotalItems       int `json:"total_items"`

	// RunningScore is the accumulated score so far.
	RunningScore int `json:"running_score"`
}

// GetProgressResult contains the progress lookup result.
type GetProgressResult struct {
	// StudentID, VocabSetID, AssignmentID echo the query.
	StudentID    string `json:"student_id"`
	VocabSetID   string `json:"vocab_set_id"`
	AssignmentID string `json:"assignment_id"`

	// Status is the assignment-level progress status.
	Status string `json:"status"`

	// Kinds holds one entry per activity kind in canonical order.
	Kinds []KindProgressDTO `json:"kinds"`

	// ConfirmedKinds is the number of distinct confirmed kinds.
	ConfirmedKinds int `json:"confirmed_kinds"`

	// TestUnlocked is the monotonic 3-of-4 unlock flag.
	TestUnlocked   bool       `json:"test_unlocked"`
	TestUnlockedAt *time.Time `json:"test_unlocked_at,omitempty"`

	// ActiveAttempt is set when an attempt is in flight and requested.
	ActiveAttempt *ActiveAttemptDTO `json:"active_attempt,omitempty"`

	// GeneratedAt is when this snapshot was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetProgressHandler handles progress lookups.
type GetProgressHandler struct {
	progress practice.ProgressRepository
	attempts practice.AttemptRepository
	sessions practice.SessionStore
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(
	progress practice.ProgressRepository,
	attempts practice.AttemptRepository,
	sessions practice.SessionStore,
) *GetProgressHandler {
	return &GetProgressHandler{
		progress: progress,
		attempts: attempts,
		sessions: sessions,
	}
}

// Handle executes the query.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*GetProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, err.Error(), err)
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

	prog, err := h.progress.Get(ctx, studentID, vocabSetID, assignmentID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Never touched: report an empty picture rather than an error.
			return emptyProgressResult(query), nil
		}
		return nil, err
	}

	result := &GetProgressResult{
		StudentID:      prog.StudentID.String(),
		VocabSetID:     prog.VocabSetID.String(),
		AssignmentID:   prog.AssignmentID.String(),
		Status:         string(prog.Status),
		ConfirmedKinds: prog.ConfirmedCount(),
		TestUnlocked:   prog.TestUnlocked,
		TestUnlockedAt: prog.TestUnlockedAt,
		GeneratedAt:    time.Now().UTC(),
	}

	for _, kind := range practice.AllKinds() {
		descriptor, dErr := practice.DescriptorFor(kind)
		if dErr != nil {
			continue
		}
		result.Kinds = append(result.Kinds, KindProgressDTO{
			Kind:         kind.String(),
			Label:        descriptor.Label,
			Status:       string(prog.KindStatuses[kind]),
			Confirmed:    prog.IsKindConfirmed(kind),
			AttemptCount: prog.AttemptCounts[kind],
			BestScore:    prog.BestScores[kind],
		})
	}

	if query.IncludeActiveAttempt {
		result.ActiveAttempt = h.loadActiveAttempt(ctx, prog)
	}

	// Reading progress counts as activity; keep the session alive.
	_ = h.sessions.Touch(ctx, studentID, vocabSetID)

	return result, nil
}

// loadActiveAttempt resolves the progress mirror's current attempt against
// the durable row. A dangling mirror yields no active attempt.
func (h *GetProgressHandler) loadActiveAttempt(ctx context.Context, prog *practice.PracticeProgress) *ActiveAttemptDTO {
	if prog.CurrentAttemptID == nil {
		return nil
	}

	attempt, err := h.attempts.GetByID(ctx, *prog.CurrentAttemptID)
	if err != nil || !attempt.Status.IsActive() {
		return nil
	}

	return &ActiveAttemptDTO{
		AttemptID:        attempt.ID.String(),
		Kind:             attempt.Kind.String(),
		Status:           string(attempt.Status),
		AttemptNumber:    attempt.AttemptNumber,
		CurrentItemIndex: attempt.CurrentItemIndex,
		ItemsCompleted:   attempt.ItemsCompleted,
		TotalItems:       attempt.TotalItems,
		RunningScore:     attempt.RunningScore,
	}
}

// emptyProgressResult builds the all-not-started picture for an untouched
// triple.
func emptyProgressResult(query GetProgressQuery) *GetProgressResult {
	result := &GetProgressResult{
		StudentID:    query.StudentID,
		VocabSetID:   query.VocabSetID,
		AssignmentID: query.AssignmentID,
		Status:       string(practice.ProgressInProgress),
		GeneratedAt:  time.Now().UTC(),
	}
	for _, kind := range practice.AllKinds() {
		descriptor, err := practice.DescriptorFor(kind)
		if err != nil {
			continue
		}
		result.Kinds = append(result.Kinds, KindProgressDTO{
			Kind:   kind.String(),
			Label:  descriptor.Label,
			Status: string(practice.KindStatusNotStarted),
		})
	}
	return result
}
