package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
	"github.com/vocaquest/practice-hub/pkg/logger"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ITEM COMMAND
// Scores one item of an in-progress attempt. Submissions are idempotent per
// (attempt, item, attempt number): re-delivery of an already scored item
// returns the recorded score without a second evaluation.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitItemCommand contains the data to submit an answer for one item.
type SubmitItemCommand struct {
	// StudentID is the submitting student.
	StudentID string

	// AttemptID is the attempt the item belongs to.
	AttemptID string

	// AssignmentID is the classroom assignment context; the progress record
	// is keyed by it.
	AssignmentID string

	// ItemID is the item being answered.
	ItemID string

	// Answer is the raw answer payload; its shape depends on the kind.
	Answer map[string]interface{}

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitItemCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("submit_item: student_id is required")
	}
	if c.AttemptID == "" {
		return errors.New("submit_item: attempt_id is required")
	}
	if c.AssignmentID == "" {
		return errors.New("submit_item: assignment_id is required")
	}
	if c.ItemID == "" {
		return errors.New("submit_item: item_id is required")
	}
	if len(c.Answer) == 0 {
		return errors.New("submit_item: answer is required")
	}
	return nil
}

// SubmitItemResult contains the result of scoring one item.
type SubmitItemResult struct {
	// ItemScore is the score recorded for this item.
	ItemScore int

	// ItemMaxScore is the item's score ceiling.
	ItemMaxScore int

	// Feedback is the evaluator's learner-facing feedback.
	Feedback string

	// FallbackScored is true when the evaluator was unavailable and a
	// deterministic zero-score substitute was recorded instead.
	FallbackScored bool

	// Duplicate is true when this submission was already scored and the
	// recorded result is being replayed.
	Duplicate bool

	// RunningScore and ItemsCompleted reflect the attempt after this item.
	RunningScore   int
	ItemsCompleted int
	TotalItems     int

	// AttemptComplete is true when this was the last item and the attempt
	// moved to the confirmation gate.
	AttemptComplete bool

	// PendingSummary is set when AttemptComplete is true.
	PendingSummary *AttemptSummary
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitItemHandler handles the SubmitItemCommand.
type SubmitItemHandler struct {
	attempts  practice.AttemptRepository
	responses practice.ResponseRepository
	progress  practice.ProgressRepository
	sessions  practice.SessionStore
	itemStore content.ItemStore
	evaluator content.Evaluator
	validator content.InputValidator
	events    shared.EventPublisher
	logger    *logger.Logger
}

// NewSubmitItemHandler creates a new SubmitItemHandler.
func NewSubmitItemHandler(
	attempts practice.AttemptRepository,
	responses practice.ResponseRepository,
	progress practice.ProgressRepository,
	sessions practice.SessionStore,
	itemStore content.ItemStore,
	evaluator content.Evaluator,
	validator content.InputValidator,
	events shared.EventPublisher,
	log *logger.Logger,
) *SubmitItemHandler {
	if log == nil {
		log = logger.Default()
	}
	return &SubmitItemHandler{
		attempts:  attempts,
		responses: responses,
		progress:  progress,
		sessions:  sessions,
		itemStore: itemStore,
		evaluator: evaluator,
		validator: validator,
		events:    events,
		logger:    log.With(logger.Component("submit_item")),
	}
}

// Handle executes the submit item command.
func (h *SubmitItemHandler) Handle(ctx context.Context, cmd SubmitItemCommand) (*SubmitItemResult, error) {
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
	itemID := shared.ItemID(cmd.ItemID)

	attempt, err := h.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, shared.NewDomainError("practice", "Submit", shared.ErrInvalidInput, "attempt belongs to another student")
	}
	if !attempt.ContainsItem(itemID) {
		return nil, shared.ErrItemNotInAttempt
	}

	// Idempotency check first: a response row is the durable proof that
	// this (attempt, item, attempt number) was already scored.
	if existing, err := h.responses.Get(ctx, attemptID, itemID, attempt.AttemptNumber); err == nil {
		return h.replay(ctx, attempt, assignmentID, existing)
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("submit_item: failed to check for prior response: %w", err)
	}

	if attempt.Status != practice.StatusInProgress {
		return nil, shared.ErrAttemptNotInProgress
	}

	// Order gate before any write. A rejected submission must leave no
	// trace; a persisted response row for a not-yet-current item would
	// later replay as that item's recorded answer.
	if current, ok := attempt.CurrentItem(); !ok || current != itemID {
		return nil, shared.ErrItemOutOfOrder
	}

	if result := h.validator.ValidateInput(attempt.Kind, cmd.Answer); !result.Valid {
		return nil, shared.NewDomainError("practice", "Submit", shared.ErrInvalidInput,
			fmt.Sprintf("answer rejected: %v", result.Errors))
	}

	set, err := h.itemStore.GetItemSet(ctx, attempt.VocabSetID, attempt.Kind)
	if err != nil {
		return nil, fmt.Errorf("submit_item: failed to load item set: %w", err)
	}
	item, ok := set.ItemByID(itemID)
	if !ok {
		return nil, shared.ErrItemNotInAttempt
	}

	evaluation := h.evaluate(ctx, attempt, item, cmd.Answer)

	now := time.Now().UTC()

	// Persist the response before the counters. If the process dies between
	// the two writes the next submission finds the orphan row and repairs
	// the ledger from it instead of double-scoring.
	response, err := practice.NewItemResponse(
		uuid.NewString(),
		attempt,
		itemID,
		cmd.Answer,
		evaluation.AsMap(),
		evaluation.Score,
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := h.responses.Insert(ctx, response); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Raced with a duplicate delivery; the stored row wins.
			stored, getErr := h.responses.Get(ctx, attemptID, itemID, attempt.AttemptNumber)
			if getErr != nil {
				return nil, fmt.Errorf("submit_item: duplicate detected but response not readable: %w", getErr)
			}
			return h.replay(ctx, attempt, assignmentID, stored)
		}
		return nil, fmt.Errorf("submit_item: failed to store response: %w", err)
	}

	if err := attempt.ApplyScore(itemID, evaluation.Score, now); err != nil {
		switch {
		case errors.Is(err, practice.ErrItemOutOfOrder):
			return nil, shared.ErrItemOutOfOrder
		case errors.Is(err, practice.ErrItemUnknown):
			return nil, shared.ErrItemNotInAttempt
		case errors.Is(err, practice.ErrNotInProgress):
			return nil, shared.ErrAttemptNotInProgress
		}
		return nil, shared.WrapError("practice", "Submit", shared.ErrStateConflict, "score could not be applied", err)
	}
	if err := h.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("submit_item: failed to update attempt: %w", err)
	}

	h.afterScore(ctx, attempt, assignmentID, now)

	event := shared.NewBaseEvent(shared.EventItemSubmitted, attempt.ID.String())
	if cmd.CorrelationID != "" {
		event = event.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.events.Publish(itemSubmittedEvent{
		BaseEvent: event,
		StudentID: studentID.String(),
		Kind:      attempt.Kind.String(),
		ItemID:    itemID.String(),
		Score:     evaluation.Score,
		Fallback:  evaluation.Fallback,
	})

	h.logger.Info("item scored",
		logger.AttemptID(attempt.ID.String()),
		logger.ItemID(itemID.String()),
		logger.Int("score", evaluation.Score),
		logger.Bool("fallback", evaluation.Fallback),
	)

	result := &SubmitItemResult{
		ItemScore:       evaluation.Score,
		ItemMaxScore:    item.MaxScore,
		Feedback:        evaluation.Feedback,
		FallbackScored:  evaluation.Fallback,
		RunningScore:    attempt.RunningScore,
		ItemsCompleted:  attempt.ItemsCompleted,
		TotalItems:      attempt.TotalItems,
		AttemptComplete: attempt.Status == practice.StatusPendingConfirmation,
	}
	if result.AttemptComplete {
		result.PendingSummary = summarize(attempt)
	}
	return result, nil
}

// evaluate calls the external evaluator, substituting the deterministic
// fallback on any dependency failure. Submission must never stall or fail
// because the evaluator is down.
func (h *SubmitItemHandler) evaluate(ctx context.Context, attempt *practice.Attempt, item content.Item, answer map[string]interface{}) content.Evaluation {
	evalContext := map[string]interface{}{
		"attempt_number": attempt.AttemptNumber,
		"position":       item.Position,
	}

	evaluation, err := h.evaluator.EvaluateItem(ctx, attempt.Kind, item, answer, evalContext)
	if err != nil {
		h.logger.Warn("evaluator unavailable, recording fallback score",
			logger.AttemptID(attempt.ID.String()),
			logger.ItemID(item.ID.String()),
			logger.Err(err),
		)
		return content.FallbackEvaluation()
	}
	return evaluation
}

// replay returns the already recorded result for a duplicate submission.
// When the response row exists but the attempt's ledger never advanced
// (a partial failure between the two writes), the ledger is repaired from
// the row first.
func (h *SubmitItemHandler) replay(ctx context.Context, attempt *practice.Attempt, assignmentID shared.AssignmentID, response *practice.ItemResponse) (*SubmitItemResult, error) {
	now := time.Now().UTC()

	repaired, err := attempt.RepairLedger(response.ItemID, response.Score, now)
	if err != nil && !errors.Is(err, practice.ErrItemOutOfOrder) && !errors.Is(err, practice.ErrNotInProgress) {
		return nil, err
	}
	if repaired {
		h.logger.Warn("attempt ledger repaired from stored response",
			logger.AttemptID(attempt.ID.String()),
			logger.ItemID(response.ItemID.String()),
			logger.Repair("response row existed without a ledger entry"),
			logger.Err(shared.ErrConsistencyRepaired),
		)
		if err := h.attempts.Update(ctx, attempt); err != nil {
			return nil, fmt.Errorf("submit_item: failed to persist ledger repair: %w", err)
		}
		h.afterScore(ctx, attempt, assignmentID, now)
	}

	feedback := ""
	fallback := false
	if response.Evaluation != nil {
		if s, ok := response.Evaluation["feedback"].(string); ok {
			feedback = s
		}
		if f, ok := response.Evaluation["fallback"].(bool); ok {
			fallback = f
		}
	}

	result := &SubmitItemResult{
		ItemScore:       response.Score,
		Feedback:        feedback,
		FallbackScored:  fallback,
		Duplicate:       true,
		RunningScore:    attempt.RunningScore,
		ItemsCompleted:  attempt.ItemsCompleted,
		TotalItems:      attempt.TotalItems,
		AttemptComplete: attempt.Status == practice.StatusPendingConfirmation,
	}
	if result.AttemptComplete {
		result.PendingSummary = summarize(attempt)
	}
	return result, nil
}

// afterScore refreshes the session pointer and, when the attempt just
// completed, records the pending state and publishes the completion event.
func (h *SubmitItemHandler) afterScore(ctx context.Context, attempt *practice.Attempt, assignmentID shared.AssignmentID, now time.Time) {
	_ = h.sessions.Put(ctx, practice.PointerFromAttempt(attempt, now))

	if attempt.Status != practice.StatusPendingConfirmation {
		return
	}

	prog, err := h.progress.Get(ctx, attempt.StudentID, attempt.VocabSetID, assignmentID)
	if err == nil {
		prog.RecordAttemptPending(attempt.Kind, now)
		if err := h.progress.Update(ctx, prog); err != nil {
			h.logger.Error("failed to record pending progress",
				logger.AttemptID(attempt.ID.String()),
				logger.Err(err),
			)
		}
	}

	_ = h.events.Publish(shared.NewAttemptCompletedEvent(
		attempt.ID.String(),
		attempt.StudentID.String(),
		attempt.Kind.String(),
		attempt.RunningScore,
		attempt.MaxPossibleScore,
		attempt.Percentage().Float64(),
		attempt.IsPassing(),
	))
}

// itemSubmittedEvent is the per-item scoring event. Local to the command
// layer; subscribers receive it through the shared.Event interface.
type itemSubmittedEvent struct {
	shared.BaseEvent
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
	ItemID    string `json:"item_id"`
	Score     int    `json:"score"`
	Fallback  bool   `json:"fallback"`
}

// Payload implements shared.Event.
func (e itemSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"kind":       e.Kind,
		"item_id":    e.ItemID,
		"score":      e.Score,
		"fallback":   e.Fallback,
	}
}
