package command

import (
	"context"
	"testing"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPuzzle opens a fresh puzzle path attempt and returns its id.
func startPuzzle(t *testing.T, env *commandEnv) string {
	t.Helper()
	result, err := env.start.Handle(context.Background(), startCommand())
	require.NoError(t, err)
	return result.AttemptID
}

func TestSubmitItem_Validate(t *testing.T) {
	valid := submitCommand("77777777-7777-4777-8777-777777777777", "frag-1")
	assert.NoError(t, valid.Validate())

	noAnswer := valid
	noAnswer.Answer = nil
	assert.Error(t, noAnswer.Validate())

	noItem := valid
	noItem.ItemID = ""
	assert.Error(t, noItem.Validate())
}

func TestSubmitItem_ScoresAndAdvances(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	env.evaluator.evaluations["frag-1"] = content.Evaluation{Score: 3, Feedback: "close"}

	result, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.ItemScore)
	assert.Equal(t, 4, result.ItemMaxScore)
	assert.Equal(t, "close", result.Feedback)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 3, result.RunningScore)
	assert.Equal(t, 1, result.ItemsCompleted)
	assert.False(t, result.AttemptComplete)

	// The response row is durable and the session pointer advanced.
	response, err := env.responses.Get(ctx, shared.AttemptID(attemptID), "frag-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, response.Score)

	pointer, err := env.sessions.Get(ctx, shared.StudentID(testStudent), shared.VocabSetID(testVocabSet))
	require.NoError(t, err)
	assert.Equal(t, 1, pointer.CurrentItemIndex)

	assert.Contains(t, env.events.typesSeen(), shared.EventItemSubmitted)
}

func TestSubmitItem_DuplicateReplaysRecordedScore(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	env.evaluator.evaluations["frag-1"] = content.Evaluation{Score: 3, Feedback: "close"}

	first, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)

	// The duplicate is answered from the stored row; a different answer
	// payload changes nothing and the evaluator is not consulted again.
	dup := submitCommand(attemptID, "frag-1")
	dup.Answer = map[string]interface{}{"order": []string{"c", "b", "a"}}
	second, err := env.submit.Handle(ctx, dup)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ItemScore, second.ItemScore)
	assert.Equal(t, first.RunningScore, second.RunningScore)
	assert.Equal(t, 1, env.evaluator.calls)
}

func TestSubmitItem_EvaluatorFailureRecordsFallback(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	env.evaluator.err = shared.ErrContentTimeout

	result, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)

	assert.True(t, result.FallbackScored)
	assert.Equal(t, 0, result.ItemScore)
	assert.Equal(t, 1, result.ItemsCompleted)

	// The fallback is durable: a later duplicate replays it even with the
	// evaluator healthy again.
	env.evaluator.err = nil
	replay, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.True(t, replay.FallbackScored)
	assert.Equal(t, 0, replay.ItemScore)
}

func TestSubmitItem_OutOfOrderRejected(t *testing.T) {
	env := newCommandEnv()
	attemptID := startPuzzle(t, env)

	_, err := env.submit.Handle(context.Background(), submitCommand(attemptID, "frag-3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrItemOutOfOrder)
}

func TestSubmitItem_RejectedOutOfOrderLeavesNoTrace(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	// frag-2 submitted while frag-1 is current. The rejection must not
	// evaluate or store anything.
	env.evaluator.evaluations["frag-2"] = content.Evaluation{Score: 0, Feedback: "wrong"}

	_, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrItemOutOfOrder)

	_, err = env.responses.Get(ctx, shared.AttemptID(attemptID), "frag-2", 1)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, env.evaluator.calls)

	// Reaching frag-2 legitimately evaluates the on-time answer instead of
	// replaying the rejected one.
	_, err = env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)

	env.evaluator.evaluations["frag-2"] = content.Evaluation{Score: 4, Feedback: "well done"}
	result, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-2"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 4, result.ItemScore)
	assert.Equal(t, 8, result.RunningScore)
}

func TestSubmitItem_UnknownItemRejected(t *testing.T) {
	env := newCommandEnv()
	attemptID := startPuzzle(t, env)

	_, err := env.submit.Handle(context.Background(), submitCommand(attemptID, "frag-99"))
	assert.ErrorIs(t, err, shared.ErrItemNotInAttempt)
}

func TestSubmitItem_WrongStudentRejected(t *testing.T) {
	env := newCommandEnv()
	attemptID := startPuzzle(t, env)

	cmd := submitCommand(attemptID, "frag-1")
	cmd.StudentID = "99999999-9999-4999-8999-999999999999"

	_, err := env.submit.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSubmitItem_InvalidAnswerShapeRejected(t *testing.T) {
	env := newCommandEnv()
	attemptID := startPuzzle(t, env)

	strict := NewSubmitItemHandler(
		env.attempts, env.responses, env.progress, env.sessions, env.itemStore,
		env.evaluator, rejectAllValidator{}, env.events, nil)

	_, err := strict.Handle(context.Background(), submitCommand(attemptID, "frag-1"))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	// Nothing was recorded for the rejected submission.
	_, err = env.responses.Get(context.Background(), shared.AttemptID(attemptID), "frag-1", 1)
	assert.True(t, shared.IsNotFound(err))
}

func TestSubmitItem_LastItemMovesToConfirmationGate(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	var last *SubmitItemResult
	for _, id := range puzzleItemOrder() {
		result, err := env.submit.Handle(ctx, submitCommand(attemptID, id))
		require.NoError(t, err)
		last = result
	}

	assert.True(t, last.AttemptComplete)
	require.NotNil(t, last.PendingSummary)
	assert.Equal(t, 20, last.PendingSummary.Score)
	assert.True(t, last.PendingSummary.Passing)
	assert.Equal(t, string(practice.StatusPassed), last.PendingSummary.ProspectiveStatus)

	attempt, err := env.attempts.GetByID(ctx, shared.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Equal(t, practice.StatusPendingConfirmation, attempt.Status)

	prog, err := env.progress.Get(ctx, attempt.StudentID, attempt.VocabSetID, shared.AssignmentID(testAssignment))
	require.NoError(t, err)
	assert.Equal(t, practice.KindStatusPending, prog.KindStatuses[practice.KindPuzzlePath])

	assert.Contains(t, env.events.typesSeen(), shared.EventAttemptCompleted)
}

func TestSubmitItem_FailingRunStillReachesConfirmationGate(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	// 2 points per item: 10 of 20, well below the threshold of 14.
	for _, id := range puzzleItemOrder() {
		env.evaluator.evaluations[id] = content.Evaluation{Score: 2}
	}

	var last *SubmitItemResult
	for _, id := range puzzleItemOrder() {
		result, err := env.submit.Handle(ctx, submitCommand(attemptID, id))
		require.NoError(t, err)
		last = result
	}

	assert.True(t, last.AttemptComplete)
	require.NotNil(t, last.PendingSummary)
	assert.False(t, last.PendingSummary.Passing)
	assert.Equal(t, string(practice.StatusFailed), last.PendingSummary.ProspectiveStatus)
}

func TestSubmitItem_RepairsLedgerFromOrphanResponse(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	attemptID := startPuzzle(t, env)

	attempt, err := env.attempts.GetByID(ctx, shared.AttemptID(attemptID))
	require.NoError(t, err)

	// Simulate a crash between the response write and the counter update:
	// the row exists but the attempt's ledger never advanced.
	orphan, err := practice.NewItemResponse(
		"66666666-6666-4666-8666-666666666666",
		attempt, "frag-1",
		map[string]interface{}{"order": []string{"a", "c", "b"}},
		content.Evaluation{Score: 4, Feedback: "well done"}.AsMap(),
		4, attempt.StartedAt,
	)
	require.NoError(t, err)
	require.NoError(t, env.responses.Insert(ctx, orphan))

	result, err := env.submit.Handle(ctx, submitCommand(attemptID, "frag-1"))
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, 4, result.ItemScore)
	assert.Equal(t, 4, result.RunningScore)
	assert.Equal(t, 1, result.ItemsCompleted)

	// The repair was persisted.
	repaired, err := env.attempts.GetByID(ctx, shared.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Equal(t, 4, repaired.RunningScore)
	assert.Equal(t, 1, repaired.CurrentItemIndex)
}

func TestSubmitItem_UnknownAttemptRejected(t *testing.T) {
	env := newCommandEnv()

	cmd := submitCommand("88888888-8888-4888-8888-888888888888", "frag-1")
	_, err := env.submit.Handle(context.Background(), cmd)
	assert.True(t, shared.IsNotFound(err))
}
