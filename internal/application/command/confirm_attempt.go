package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
	"github.com/vocaquest/practice-hub/pkg/logger"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRM ATTEMPT COMMAND
// Commits a pending, passing attempt: status moves to passed, a completion
// record is written, progress is updated, and the session cache is cleared.
// A below-threshold attempt can never be confirmed.
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmAttemptCommand contains the data to confirm a pending attempt.
type ConfirmAttemptCommand struct {
	// StudentID is the confirming student.
	StudentID string

	// AttemptID is the pending attempt being committed.
	AttemptID string

	// AssignmentID is the classroom assignment context.
	AssignmentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ConfirmAttemptCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("confirm_attempt: student_id is required")
	}
	if c.AttemptID == "" {
		return errors.New("confirm_attempt: attempt_id is required")
	}
	if c.AssignmentID == "" {
		return errors.New("confirm_attempt: assignment_id is required")
	}
	return nil
}

// ConfirmAttemptResult contains the result of confirming an attempt.
type ConfirmAttemptResult struct {
	// Summary is the committed attempt's final snapshot.
	Summary *AttemptSummary

	// KindConfirmed is the activity kind that was committed.
	KindConfirmed string

	// ConfirmedKinds is the number of distinct confirmed kinds after this
	// confirmation.
	ConfirmedKinds int

	// TestUnlocked reports the monotonic unlock state after this
	// confirmation; TestNewlyUnlocked is true only on the confirmation
	// that crossed the gate.
	TestUnlocked      bool
	TestNewlyUnlocked bool

	// AlreadyConfirmed is true when the attempt was confirmed earlier and
	// this delivery was a no-op replay.
	AlreadyConfirmed bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmAttemptHandler handles the ConfirmAttemptCommand.
type ConfirmAttemptHandler struct {
	attempts    practice.AttemptRepository
	progress    practice.ProgressRepository
	completions practice.CompletionRepository
	sessions    practice.SessionStore
	events      shared.EventPublisher
	logger      *logger.Logger
}

// NewConfirmAttemptHandler creates a new ConfirmAttemptHandler.
func NewConfirmAttemptHandler(
	attempts practice.AttemptRepository,
	progress practice.ProgressRepository,
	completions practice.CompletionRepository,
	sessions practice.SessionStore,
	events shared.EventPublisher,
	log *logger.Logger,
) *ConfirmAttemptHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ConfirmAttemptHandler{
		attempts:    attempts,
		progress:    progress,
		completions: completions,
		sessions:    sessions,
		events:      events,
		logger:      log.With(logger.Component("confirm_attempt")),
	}
}

// Handle executes the confirm attempt command.
func (h *ConfirmAttemptHandler) Handle(ctx context.Context, cmd ConfirmAttemptCommand) (*ConfirmAttemptResult, error) {
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
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, shared.NewDomainError("practice", "Confirm", shared.ErrInvalidInput, "attempt belongs to another student")
	}

	prog, err := h.progress.GetOrCreate(ctx, studentID, attempt.VocabSetID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("confirm_attempt: failed to load progress: %w", err)
	}

	// Re-delivery of a confirmation for an already passed attempt is a
	// no-op replay, not an error.
	if attempt.Status == practice.StatusPassed {
		return &ConfirmAttemptResult{
			Summary:          summarize(attempt),
			KindConfirmed:    attempt.Kind.String(),
			ConfirmedKinds:   prog.ConfirmedCount(),
			TestUnlocked:     prog.TestUnlocked,
			AlreadyConfirmed: true,
		}, nil
	}

	if err := attempt.ConfirmPassed(); err != nil {
		switch {
		case errors.Is(err, practice.ErrNotPending):
			return nil, shared.ErrAttemptNotPending
		case errors.Is(err, practice.ErrBelowPassingScore):
			return nil, shared.ErrAttemptNotPassing
		}
		return nil, err
	}

	now := time.Now().UTC()

	if err := h.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("confirm_attempt: failed to persist confirmation: %w", err)
	}

	record, err := practice.NewCompletionRecord(uuid.NewString(), attempt, assignmentID, now)
	if err != nil {
		return nil, err
	}
	if err := h.completions.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("confirm_attempt: failed to write completion record: %w", err)
	}

	newlyUnlocked := prog.MarkKindConfirmed(attempt.Kind, attempt.RunningScore, now)
	if err := h.progress.Update(ctx, prog); err != nil {
		return nil, fmt.Errorf("confirm_attempt: failed to update progress: %w", err)
	}

	_ = h.sessions.Clear(ctx, studentID, attempt.VocabSetID)

	confirmed := shared.NewAttemptConfirmedEvent(
		attempt.ID.String(),
		studentID.String(),
		attempt.Kind.String(),
		attempt.RunningScore,
		attempt.Percentage().Float64(),
	)
	if cmd.CorrelationID != "" {
		confirmed.BaseEvent = confirmed.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.events.Publish(confirmed)

	if newlyUnlocked {
		_ = h.events.Publish(shared.NewTestUnlockedEvent(
			prog.ID,
			studentID.String(),
			attempt.VocabSetID.String(),
			assignmentID.String(),
			prog.ConfirmedCount(),
		))
	}

	h.logger.Info("attempt confirmed",
		logger.StudentID(studentID.String()),
		logger.Kind(attempt.Kind.String()),
		logger.AttemptID(attempt.ID.String()),
		logger.Int("score", attempt.RunningScore),
		logger.Bool("test_newly_unlocked", newlyUnlocked),
	)

	return &ConfirmAttemptResult{
		Summary:           summarize(attempt),
		KindConfirmed:     attempt.Kind.String(),
		ConfirmedKinds:    prog.ConfirmedCount(),
		TestUnlocked:      prog.TestUnlocked,
		TestNewlyUnlocked: newlyUnlocked,
	}, nil
}
