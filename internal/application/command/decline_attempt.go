package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
	"github.com/vocaquest/practice-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECLINE ATTEMPT COMMAND
// Rolls back a pending attempt in full: the attempt row and every response
// are deleted, progress returns the kind to its pre-attempt status, and the
// session cache is cleared. The consumed attempt number is never reused.
// ══════════════════════════════════════════════════════════════════════════════

// DeclineAttemptCommand contains the data to decline a pending attempt.
type DeclineAttemptCommand struct {
	// StudentID is the declining student.
	StudentID string

	// AttemptID is the pending attempt being rolled back.
	AttemptID string

	// AssignmentID is the classroom assignment context.
	AssignmentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c DeclineAttemptCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("decline_attempt: student_id is required")
	}
	if c.AttemptID == "" {
		return errors.New("decline_attempt: attempt_id is required")
	}
	if c.AssignmentID == "" {
		return errors.New("decline_attempt: assignment_id is required")
	}
	return nil
}

// DeclineAttemptResult contains the result of declining an attempt.
type DeclineAttemptResult struct {
	// Kind is the activity kind that was rolled back.
	Kind string

	// AttemptNumber is the consumed number; the next attempt gets a higher one.
	AttemptNumber int

	// FinalScore, MaxPossibleScore, and Percentage are the rolled-back
	// attempt's last known score. Zero when the attempt was already gone.
	FinalScore       int
	MaxPossibleScore int
	Percentage       float64

	// ResponsesRemoved is the number of response rows deleted.
	ResponsesRemoved int

	// AlreadyGone is true when the attempt was no longer present and this
	// delivery was a no-op replay.
	AlreadyGone bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DeclineAttemptHandler handles the DeclineAttemptCommand.
type DeclineAttemptHandler struct {
	attempts  practice.AttemptRepository
	responses practice.ResponseRepository
	progress  practice.ProgressRepository
	sessions  practice.SessionStore
	events    shared.EventPublisher
	logger    *logger.Logger
}

// NewDeclineAttemptHandler creates a new DeclineAttemptHandler.
func NewDeclineAttemptHandler(
	attempts practice.AttemptRepository,
	responses practice.ResponseRepository,
	progress practice.ProgressRepository,
	sessions practice.SessionStore,
	events shared.EventPublisher,
	log *logger.Logger,
) *DeclineAttemptHandler {
	if log == nil {
		log = logger.Default()
	}
	return &DeclineAttemptHandler{
		attempts:  attempts,
		responses: responses,
		progress:  progress,
		sessions:  sessions,
		events:    events,
		logger:    log.With(logger.Component("decline_attempt")),
	}
}

// Handle executes the decline attempt command.
func (h *DeclineAttemptHandler) Handle(ctx context.Context, cmd DeclineAttemptCommand) (*DeclineAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}
	attemptID, err := shared.NewAttemptID(cmd.AttemptID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := shared.NewAssignmentID(cmd.AssignmentID)
	if err != nil {
		return nil, err
	}

	attempt, err := h.attempts.GetByID(ctx, attemptID)
	if shared.IsNotFound(err) {
		// Re-delivery of a decline that already ran. The rollback is done;
		// report success.
		return &DeclineAttemptResult{AlreadyGone: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, shared.NewDomainError("practice", "Decline", shared.ErrInvalidInput, "attempt belongs to another student")
	}

	if err := attempt.MarkDeclined(); err != nil {
		return nil, shared.ErrAttemptNotPending
	}

	now := time.Now().UTC()

	// Delete the attempt row first. If the process dies before the response
	// cleanup, the leftovers are inert rows no active attempt references;
	// the reverse order would leave an active attempt stripped of its
	// responses.
	if err := h.attempts.Delete(ctx, attemptID); err != nil {
		return nil, fmt.Errorf("decline_attempt: failed to delete attempt: %w", err)
	}

	removed, err := h.responses.DeleteByAttempt(ctx, attemptID, attempt.AttemptNumber)
	if err != nil {
		return nil, fmt.Errorf("decline_attempt: failed to delete responses: %w", err)
	}

	prog, err := h.progress.GetOrCreate(ctx, studentID, attempt.VocabSetID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("decline_attempt: failed to load progress: %w", err)
	}
	prog.RecordAttemptDeclined(attempt.Kind, now)
	if err := h.progress.Update(ctx, prog); err != nil {
		return nil, fmt.Errorf("decline_attempt: failed to update progress: %w", err)
	}

	_ = h.sessions.Clear(ctx, studentID, attempt.VocabSetID)

	declined := shared.NewAttemptDeclinedEvent(
		attempt.ID.String(),
		studentID.String(),
		attempt.Kind.String(),
		attempt.AttemptNumber,
	)
	if cmd.CorrelationID != "" {
		declined.BaseEvent = declined.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.events.Publish(declined)

	h.logger.Info("attempt declined and rolled back",
		logger.StudentID(studentID.String()),
		logger.Kind(attempt.Kind.String()),
		logger.AttemptID(attempt.ID.String()),
		logger.Int("attempt_number", attempt.AttemptNumber),
		logger.Int("responses_removed", removed),
	)

	return &DeclineAttemptResult{
		Kind:             attempt.Kind.String(),
		AttemptNumber:    attempt.AttemptNumber,
		FinalScore:       attempt.RunningScore,
		MaxPossibleScore: attempt.MaxPossibleScore,
		Percentage:       attempt.Percentage().Float64(),
		ResponsesRemoved: removed,
	}, nil
}
