package command

import (
	"context"
	"testing"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAttempt_Validate(t *testing.T) {
	valid := startCommand()
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.StudentID = ""
	assert.Error(t, missing.Validate())

	badKind := valid
	badKind.Kind = "crossword"
	assert.Error(t, badKind.Validate())
}

func TestStartAttempt_NewAttemptGeneratesItems(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	result, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	assert.Equal(t, 1, result.AttemptNumber)
	assert.Equal(t, string(practice.StatusInProgress), result.Status)
	assert.False(t, result.Resumed)
	assert.Equal(t, 5, result.TotalItems)
	require.Len(t, result.Items, 5)
	assert.Equal(t, shared.ItemID("frag-1"), result.Items[0].ID)
	assert.Equal(t, 1, env.generator.calls)

	// The durable attempt carries the derived scoring bounds: 20 max,
	// 14 to pass.
	attempt, err := env.attempts.GetByID(ctx, shared.AttemptID(result.AttemptID))
	require.NoError(t, err)
	assert.Equal(t, 20, attempt.MaxPossibleScore)
	assert.Equal(t, 14, attempt.PassingScore)

	// Progress consumed the first attempt number and the session pointer
	// tracks the new attempt.
	prog, err := env.progress.Get(ctx, attempt.StudentID, attempt.VocabSetID, shared.AssignmentID(testAssignment))
	require.NoError(t, err)
	assert.Equal(t, 1, prog.AttemptCounts[practice.KindPuzzlePath])

	pointer, err := env.sessions.Get(ctx, attempt.StudentID, attempt.VocabSetID)
	require.NoError(t, err)
	assert.True(t, pointer.Matches(attempt))

	assert.Contains(t, env.events.typesSeen(), shared.EventAttemptStarted)
}

func TestStartAttempt_SecondStartResumes(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	first, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	second, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, first.AttemptID, second.AttemptID)
	assert.Equal(t, first.AttemptNumber, second.AttemptNumber)
	require.Len(t, second.Items, 5)

	// The stored item set is reused; generation ran exactly once.
	assert.Equal(t, 1, env.generator.calls)
	assert.Contains(t, env.events.typesSeen(), shared.EventAttemptResumed)
}

func TestStartAttempt_ResumeMidAttemptKeepsPosition(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	started, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	for _, id := range []shared.ItemID{"frag-1", "frag-2"} {
		_, err := env.submit.Handle(ctx, submitCommand(started.AttemptID, id))
		require.NoError(t, err)
	}

	resumed, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	assert.True(t, resumed.Resumed)
	assert.Equal(t, 2, resumed.CurrentItemIndex)
	assert.Equal(t, 2, resumed.ItemsCompleted)
	assert.Equal(t, 8, resumed.RunningScore)
}

func TestStartAttempt_ResumePendingReturnsSummaryWithoutItems(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	started, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	for _, id := range puzzleItemOrder() {
		_, err := env.submit.Handle(ctx, submitCommand(started.AttemptID, id))
		require.NoError(t, err)
	}

	resumed, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	assert.True(t, resumed.Resumed)
	assert.Equal(t, string(practice.StatusPendingConfirmation), resumed.Status)
	assert.Empty(t, resumed.Items)
	require.NotNil(t, resumed.PendingSummary)
	assert.Equal(t, 20, resumed.PendingSummary.Score)
	assert.True(t, resumed.PendingSummary.Passing)
}

func TestStartAttempt_StaleSessionPointerRepaired(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	// A pointer to an attempt that no longer exists anywhere durable.
	stale := practice.SessionPointer{
		AttemptID:  "44444444-4444-4444-8444-444444444444",
		StudentID:  shared.StudentID(testStudent),
		VocabSetID: shared.VocabSetID(testVocabSet),
		Kind:       practice.KindPuzzlePath,
	}
	require.NoError(t, env.sessions.Put(ctx, stale))

	result, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)

	// The stale pointer was dropped and a fresh attempt created.
	assert.False(t, result.Resumed)
	assert.NotEqual(t, stale.AttemptID.String(), result.AttemptID)

	pointer, err := env.sessions.Get(ctx, stale.StudentID, stale.VocabSetID)
	require.NoError(t, err)
	assert.Equal(t, result.AttemptID, pointer.AttemptID.String())
}

// raceAttemptRepo hides the active attempt from the pre-create lookup so the
// handler walks into the uniqueness constraint, as a losing concurrent
// starter would.
type raceAttemptRepo struct {
	*fakeAttemptRepo
	hideActive int
}

func (r *raceAttemptRepo) GetActive(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*practice.Attempt, error) {
	if r.hideActive > 0 {
		r.hideActive--
		return nil, shared.ErrAttemptNotFound
	}
	return r.fakeAttemptRepo.GetActive(ctx, studentID, vocabSetID, kind)
}

func TestStartAttempt_CreationRaceConvergesOnWinner(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()
	storedPuzzleSet(env.itemStore)

	winner, err := practice.NewAttempt(
		"55555555-5555-4555-8555-555555555555",
		shared.StudentID(testStudent), shared.VocabSetID(testVocabSet),
		practice.KindPuzzlePath, 1, puzzleItemOrder(), 20, 14, time.Now().UTC(),
	)
	require.NoError(t, err)
	require.NoError(t, env.attempts.Create(ctx, winner))

	racing := &raceAttemptRepo{fakeAttemptRepo: env.attempts, hideActive: 1}
	handler := NewStartAttemptHandler(
		racing, env.progress, env.sessions, env.itemStore, env.generator, env.events, nil)

	result, err := handler.Handle(ctx, startCommand())
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, winner.ID.String(), result.AttemptID)
	assert.Equal(t, 1, result.AttemptNumber)
}

func TestStartAttempt_NumberNotReusedAfterDecline(t *testing.T) {
	env := newCommandEnv()
	ctx := context.Background()

	first, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)

	for _, id := range puzzleItemOrder() {
		_, err := env.submit.Handle(ctx, submitCommand(first.AttemptID, id))
		require.NoError(t, err)
	}
	_, err = env.decline.Handle(ctx, DeclineAttemptCommand{
		StudentID:    testStudent,
		AttemptID:    first.AttemptID,
		AssignmentID: testAssignment,
	})
	require.NoError(t, err)

	// The declined attempt's row is gone, so the durable maximum alone
	// would hand out 1 again; the progress counter prevents the reuse.
	second, err := env.start.Handle(ctx, startCommand())
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.NotEqual(t, first.AttemptID, second.AttemptID)
}

func TestStartAttempt_GeneratorFailureSurfaces(t *testing.T) {
	env := newCommandEnv()
	env.generator.err = shared.ErrContentUnavailable

	_, err := env.start.Handle(context.Background(), startCommand())
	require.Error(t, err)
	assert.True(t, shared.IsDependency(err))
}
