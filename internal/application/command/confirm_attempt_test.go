package command

import (
	"context"
	"testing"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingPuzzle runs a full attempt to the confirmation gate with the given
// per-item scores and returns its id.
func pendingPuzzle(t *testing.T, env *commandEnv, scores []int) string {
	t.Helper()
	ctx := context.Background()

	attemptID := startPuzzle(t, env)
	for i, id := range puzzleItemOrder() {
		env.evaluator.evaluations[id] = content.Evaluation{Score: scores[i]}
		_, err := env.submit.Handle(ctx, submitCommand(attemptID, id))
		require.NoError(t, err)
	}
	return attemptID
}

func confirmCommand(attemptID string) ConfirmAttemptCommand {
	return ConfirmAttemptCommand{
		StudentID:    testStudent,
		AttemptID:    attemptID,
		AssignmentID: testAssignment,
	}
}

func TestConfirmAttempt_CommitsPassingAttempt(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	// 14 of 20, exactly the threshold.
	attemptID := pendingPuzzle(t, env, []int{4, 3, 4, 2, 1})

	result, err := env.confirm.Handle(ctx, confirmCommand(attemptID))
	require.NoError(t, err)

	assert.Equal(t, practice.KindPuzzlePath.String(), result.KindConfirmed)
	assert.Equal(t, 1, result.ConfirmedKinds)
	assert.False(t, result.TestUnlocked)
	assert.False(t, result.AlreadyConfirmed)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 14, result.Summary.Score)
	assert.InDelta(t, 70.0, result.Summary.Percentage, 0.001)

	attempt, err := env.attempts.GetByID(ctx, shared.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Equal(t, practice.StatusPassed, attempt.Status)

	// A completion record exists and the session cache is cleared.
	records, err := env.completions.List(ctx,
		shared.StudentID(testStudent), shared.VocabSetID(testVocabSet), shared.AssignmentID(testAssignment))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, practice.KindPuzzlePath, records[0].Kind)
	assert.Equal(t, 14, records[0].BestScore)

	_, err = env.sessions.Get(ctx, shared.StudentID(testStudent), shared.VocabSetID(testVocabSet))
	assert.True(t, shared.IsNotFound(err))

	assert.Contains(t, env.events.typesSeen(), shared.EventAttemptConfirmed)
}

func TestConfirmAttempt_RejectsBelowThreshold(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	// 13 of 20, one point short.
	attemptID := pendingPuzzle(t, env, []int{4, 3, 4, 2, 0})

	_, err := env.confirm.Handle(ctx, confirmCommand(attemptID))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAttemptNotPassing)

	// The attempt stays at the gate; decline remains the only way out.
	attempt, getErr := env.attempts.GetByID(ctx, shared.AttemptID(attemptID))
	require.NoError(t, getErr)
	assert.Equal(t, practice.StatusPendingConfirmation, attempt.Status)

	records, listErr := env.completions.List(ctx,
		shared.StudentID(testStudent), shared.VocabSetID(testVocabSet), shared.AssignmentID(testAssignment))
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestConfirmAttempt_RejectsInProgress(t *testing.T) {
	env := newCommandEnv()
	attemptID := startPuzzle(t, env)

	_, err := env.confirm.Handle(context.Background(), confirmCommand(attemptID))
	assert.ErrorIs(t, err, shared.ErrAttemptNotPending)
}

func TestConfirmAttempt_ReplayIsNoOp(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	attemptID := pendingPuzzle(t, env, []int{4, 4, 4, 4, 4})

	first, err := env.confirm.Handle(ctx, confirmCommand(attemptID))
	require.NoError(t, err)
	require.False(t, first.AlreadyConfirmed)

	second, err := env.confirm.Handle(ctx, confirmCommand(attemptID))
	require.NoError(t, err)

	assert.True(t, second.AlreadyConfirmed)
	assert.Equal(t, first.ConfirmedKinds, second.ConfirmedKinds)

	// Still exactly one completion record.
	records, err := env.completions.List(ctx,
		shared.StudentID(testStudent), shared.VocabSetID(testVocabSet), shared.AssignmentID(testAssignment))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConfirmAttempt_ThirdKindUnlocksTest(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	attemptID := pendingPuzzle(t, env, []int{4, 4, 4, 4, 4})

	// Two kinds already confirmed; the puzzle path is the third.
	prog, err := env.progress.Get(ctx,
		shared.StudentID(testStudent), shared.VocabSetID(testVocabSet), shared.AssignmentID(testAssignment))
	require.NoError(t, err)
	now := time.Now().UTC()
	prog.MarkKindConfirmed(practice.KindStoryBuilder, 40, now)
	prog.MarkKindConfirmed(practice.KindFillBlank, 16, now)
	require.NoError(t, env.progress.Update(ctx, prog))

	result, err := env.confirm.Handle(ctx, confirmCommand(attemptID))
	require.NoError(t, err)

	assert.Equal(t, 3, result.ConfirmedKinds)
	assert.True(t, result.TestUnlocked)
	assert.True(t, result.TestNewlyUnlocked)
	assert.Contains(t, env.events.typesSeen(), shared.EventTestUnlocked)
}

func TestConfirmAttempt_WrongStudentRejected(t *testing.T) {
	env := newCommandEnv()
	attemptID := pendingPuzzle(t, env, []int{4, 4, 4, 4, 4})

	cmd := confirmCommand(attemptID)
	cmd.StudentID = "99999999-9999-4999-8999-999999999999"

	_, err := env.confirm.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
