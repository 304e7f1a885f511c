// Package command contains write operations (CQRS - Commands) for the
// practice-attempt lifecycle.
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
// START ATTEMPT COMMAND
// Opens or resumes the single active attempt for a (student, kind,
// vocabulary set) triple. The session cache is consulted first but never
// trusted: a pointer is only honored after the durable attempt confirms it.
// ══════════════════════════════════════════════════════════════════════════════

// StartAttemptCommand contains the data to start or resume an attempt.
type StartAttemptCommand struct {
	// StudentID is the student opening the activity.
	StudentID string

	// VocabSetID is the vocabulary set being practiced.
	VocabSetID string

	// AssignmentID is the classroom assignment context.
	AssignmentID string

	// Kind is the activity kind to open.
	Kind string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c StartAttemptCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("start_attempt: student_id is required")
	}
	if c.VocabSetID == "" {
		return errors.New("start_attempt: vocab_set_id is required")
	}
	if c.AssignmentID == "" {
		return errors.New("start_attempt: assignment_id is required")
	}
	if _, err := practice.ParseKind(c.Kind); err != nil {
		return fmt.Errorf("start_attempt: invalid kind %q", c.Kind)
	}
	return nil
}

// AttemptSummary is the learner-facing snapshot of a scored attempt held at
// the confirmation gate. The same shape is returned for every activity
// kind; only the numbers differ.
type AttemptSummary struct {
	AttemptID         string
	Kind              string
	AttemptNumber     int
	Score             int
	MaxPossibleScore  int
	Percentage        float64
	Passing           bool
	ProspectiveStatus string
	CompletedAt       *time.Time
	DurationSeconds   int
}

// summarize builds an AttemptSummary from an attempt.
func summarize(a *practice.Attempt) *AttemptSummary {
	return &AttemptSummary{
		AttemptID:         a.ID.String(),
		Kind:              a.Kind.String(),
		AttemptNumber:     a.AttemptNumber,
		Score:             a.RunningScore,
		MaxPossibleScore:  a.MaxPossibleScore,
		Percentage:        a.Percentage().Float64(),
		Passing:           a.IsPassing(),
		ProspectiveStatus: string(a.ProspectiveStatus()),
		CompletedAt:       a.CompletedAt,
		DurationSeconds:   a.DurationSeconds,
	}
}

// StartAttemptResult contains the result of starting or resuming an attempt.
type StartAttemptResult struct {
	// AttemptID is the active attempt's id.
	AttemptID string

	// AttemptNumber is its per-triple sequence number.
	AttemptNumber int

	// Status is the attempt's durable status.
	Status string

	// Resumed is true when an existing in-progress attempt was continued.
	Resumed bool

	// CurrentItemIndex is where the learner continues.
	CurrentItemIndex int

	// ItemsCompleted and TotalItems describe position within the attempt.
	ItemsCompleted int
	TotalItems     int

	// RunningScore is the accumulated score so far.
	RunningScore int

	// Items is the learner-facing item list in fixed order. Empty when the
	// attempt sits at the confirmation gate.
	Items []content.ItemView

	// PendingSummary is set when the attempt awaits an explicit confirm or
	// decline; the caller must not serve items until it is resolved.
	PendingSummary *AttemptSummary
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StartAttemptHandler handles the StartAttemptCommand.
type StartAttemptHandler struct {
	attempts  practice.AttemptRepository
	progress  practice.ProgressRepository
	sessions  practice.SessionStore
	itemStore content.ItemStore
	generator content.Generator
	events    shared.EventPublisher
	logger    *logger.Logger
}

// NewStartAttemptHandler creates a new StartAttemptHandler.
func NewStartAttemptHandler(
	attempts practice.AttemptRepository,
	progress practice.ProgressRepository,
	sessions practice.SessionStore,
	itemStore content.ItemStore,
	generator content.Generator,
	events shared.EventPublisher,
	log *logger.Logger,
) *StartAttemptHandler {
	if log == nil {
		log = logger.Default()
	}
	return &StartAttemptHandler{
		attempts:  attempts,
		progress:  progress,
		sessions:  sessions,
		itemStore: itemStore,
		generator: generator,
		events:    events,
		logger:    log.With(logger.Component("start_attempt")),
	}
}

// Handle executes the start attempt command.
func (h *StartAttemptHandler) Handle(ctx context.Context, cmd StartAttemptCommand) (*StartAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}
	vocabSetID, err := shared.NewVocabSetID(cmd.VocabSetID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := shared.NewAssignmentID(cmd.AssignmentID)
	if err != nil {
		return nil, err
	}
	kind, _ := practice.ParseKind(cmd.Kind)

	prog, err := h.progress.GetOrCreate(ctx, studentID, vocabSetID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to load progress: %w", err)
	}

	// Fast path: a cached pointer for this pair. Never authoritative; the
	// durable attempt decides whether it is honored.
	if attempt := h.resumeFromSession(ctx, studentID, vocabSetID, kind); attempt != nil {
		return h.resume(ctx, attempt)
	}

	// Durable path: the partial unique index guarantees at most one row.
	active, err := h.attempts.GetActive(ctx, studentID, vocabSetID, kind)
	switch {
	case err == nil:
		return h.resume(ctx, active)
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("start_attempt: failed to look up active attempt: %w", err)
	}

	return h.createAttempt(ctx, cmd, studentID, vocabSetID, kind, prog)
}

// resumeFromSession validates the cached pointer against the durable
// attempt. A stale or dangling pointer is cleared and logged as a repaired
// inconsistency, then the caller falls through to the durable path.
func (h *StartAttemptHandler) resumeFromSession(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) *practice.Attempt {
	pointer, err := h.sessions.Get(ctx, studentID, vocabSetID)
	if err != nil {
		return nil
	}
	if pointer.Kind != kind {
		return nil
	}

	attempt, err := h.attempts.GetByID(ctx, pointer.AttemptID)
	if err != nil || !attempt.Status.IsActive() || !pointer.Matches(attempt) {
		h.logger.Warn("stale session pointer dropped",
			logger.StudentID(studentID.String()),
			logger.VocabSetID(vocabSetID.String()),
			logger.AttemptID(pointer.AttemptID.String()),
			logger.Repair("session pointer no longer matches durable attempt"),
			logger.Err(shared.ErrConsistencyRepaired),
		)
		_ = h.sessions.Clear(ctx, studentID, vocabSetID)
		return nil
	}
	return attempt
}

// resume returns the existing active attempt. An in-progress attempt
// continues at its saved position; a pending one is reported with its
// summary so the learner resolves the confirmation gate first.
func (h *StartAttemptHandler) resume(ctx context.Context, attempt *practice.Attempt) (*StartAttemptResult, error) {
	now := time.Now().UTC()

	result := &StartAttemptResult{
		AttemptID:        attempt.ID.String(),
		AttemptNumber:    attempt.AttemptNumber,
		Status:           string(attempt.Status),
		Resumed:          true,
		CurrentItemIndex: attempt.CurrentItemIndex,
		ItemsCompleted:   attempt.ItemsCompleted,
		TotalItems:       attempt.TotalItems,
		RunningScore:     attempt.RunningScore,
	}

	if attempt.Status == practice.StatusPendingConfirmation {
		result.PendingSummary = summarize(attempt)
		_ = h.sessions.Put(ctx, practice.PointerFromAttempt(attempt, now))
		h.publishResumed(attempt)
		return result, nil
	}

	views, err := h.itemViews(ctx, attempt.VocabSetID, attempt.Kind)
	if err != nil {
		return nil, err
	}
	result.Items = views

	_ = h.sessions.Put(ctx, practice.PointerFromAttempt(attempt, now))
	h.publishResumed(attempt)
	return result, nil
}

// createAttempt allocates the next attempt over the stored item set,
// generating the set on first use.
func (h *StartAttemptHandler) createAttempt(
	ctx context.Context,
	cmd StartAttemptCommand,
	studentID shared.StudentID,
	vocabSetID shared.VocabSetID,
	kind practice.ActivityKind,
	prog *practice.PracticeProgress,
) (*StartAttemptResult, error) {
	set, err := h.ensureItemSet(ctx, vocabSetID, kind)
	if err != nil {
		return nil, err
	}

	// Attempt numbers are never reused. The durable maximum undercounts
	// after a decline deleted rows, so the progress counter covers the gap.
	maxNumber, err := h.attempts.MaxAttemptNumber(ctx, studentID, vocabSetID, kind)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to allocate attempt number: %w", err)
	}
	if allocated := prog.AttemptCounts[kind]; allocated > maxNumber {
		maxNumber = allocated
	}

	now := time.Now().UTC()
	maxScore := set.MaxPossibleScore()
	passingScore := (maxScore*int(practice.PassingThresholdPct) + 99) / 100

	attempt, err := practice.NewAttempt(
		shared.AttemptID(uuid.NewString()),
		studentID,
		vocabSetID,
		kind,
		maxNumber+1,
		set.Order(),
		maxScore,
		passingScore,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to build attempt: %w", err)
	}

	if err := h.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Lost a creation race; converge on the winner's attempt.
			winner, getErr := h.attempts.GetActive(ctx, studentID, vocabSetID, kind)
			if getErr != nil {
				return nil, fmt.Errorf("start_attempt: lost creation race but winner not found: %w", getErr)
			}
			h.logger.Info("creation race converged on winner",
				logger.StudentID(studentID.String()),
				logger.Kind(kind.String()),
				logger.AttemptID(winner.ID.String()),
			)
			return h.resume(ctx, winner)
		}
		return nil, fmt.Errorf("start_attempt: failed to create attempt: %w", err)
	}

	prog.RecordAttemptStarted(kind, attempt.ID, true, now)
	if err := h.progress.Update(ctx, prog); err != nil {
		return nil, fmt.Errorf("start_attempt: failed to update progress: %w", err)
	}

	_ = h.sessions.Put(ctx, practice.PointerFromAttempt(attempt, now))

	event := shared.NewAttemptStartedEvent(
		attempt.ID.String(),
		studentID.String(),
		vocabSetID.String(),
		kind.String(),
		attempt.AttemptNumber,
		attempt.TotalItems,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.events.Publish(event)

	h.logger.Info("attempt started",
		logger.StudentID(studentID.String()),
		logger.VocabSetID(vocabSetID.String()),
		logger.Kind(kind.String()),
		logger.AttemptID(attempt.ID.String()),
		logger.Int("attempt_number", attempt.AttemptNumber),
	)

	views := make([]content.ItemView, len(set.Items))
	for i, item := range set.Items {
		views[i] = item.View()
	}

	return &StartAttemptResult{
		AttemptID:     attempt.ID.String(),
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		TotalItems:    attempt.TotalItems,
		Items:         views,
	}, nil
}

// ensureItemSet returns the stored item set for the pair, generating and
// persisting it on first use. Generation happens at most once per pair;
// concurrent generators converge on the first stored set.
func (h *StartAttemptHandler) ensureItemSet(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*content.ItemSet, error) {
	set, err := h.itemStore.GetItemSet(ctx, vocabSetID, kind)
	if err == nil {
		return set, nil
	}
	if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("start_attempt: failed to load item set: %w", err)
	}

	items, err := h.generator.GenerateItems(ctx, vocabSetID, kind)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: item generation failed: %w", err)
	}

	fresh := &content.ItemSet{
		VocabSetID:  vocabSetID,
		Kind:        kind,
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	}
	if err := h.itemStore.SaveItemSet(ctx, fresh); err != nil {
		return nil, fmt.Errorf("start_attempt: failed to store item set: %w", err)
	}

	// Re-read so a concurrent generator's winning set is the one used.
	stored, err := h.itemStore.GetItemSet(ctx, vocabSetID, kind)
	if err != nil {
		return fresh, nil
	}
	return stored, nil
}

// itemViews loads the learner-facing item list for an attempt being resumed.
func (h *StartAttemptHandler) itemViews(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) ([]content.ItemView, error) {
	set, err := h.itemStore.GetItemSet(ctx, vocabSetID, kind)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to load item set: %w", err)
	}
	views := make([]content.ItemView, len(set.Items))
	for i, item := range set.Items {
		views[i] = item.View()
	}
	return views, nil
}

func (h *StartAttemptHandler) publishResumed(attempt *practice.Attempt) {
	event := shared.NewAttemptStartedEvent(
		attempt.ID.String(),
		attempt.StudentID.String(),
		attempt.VocabSetID.String(),
		attempt.Kind.String(),
		attempt.AttemptNumber,
		attempt.TotalItems,
	)
	event.BaseEvent.Type = shared.EventAttemptResumed
	_ = h.events.Publish(event)
}
