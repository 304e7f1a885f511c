package practice

import (
	"testing"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAttemptID  = shared.AttemptID("5f1c2b3a-0000-4000-8000-000000000001")
	testStudentID  = shared.StudentID("5f1c2b3a-0000-4000-8000-0000000000aa")
	testVocabSetID = shared.VocabSetID("5f1c2b3a-0000-4000-8000-0000000000bb")
)

func puzzleOrder() []shared.ItemID {
	return []shared.ItemID{"frag-1", "frag-2", "frag-3", "frag-4", "frag-5"}
}

// newPuzzleAttempt builds a puzzle path attempt: 5 items, 4 points each,
// 20 max, 14 to pass.
func newPuzzleAttempt(t *testing.T) *Attempt {
	t.Helper()
	a, err := NewAttempt(
		testAttemptID, testStudentID, testVocabSetID,
		KindPuzzlePath, 1, puzzleOrder(), 20, 14, time.Now().UTC(),
	)
	require.NoError(t, err)
	return a
}

func TestNewAttempt_Validation(t *testing.T) {
	now := time.Now().UTC()

	_, err := NewAttempt("not-a-uuid", testStudentID, testVocabSetID, KindPuzzlePath, 1, puzzleOrder(), 20, 14, now)
	assert.ErrorIs(t, err, ErrInvalidAttempt)

	_, err = NewAttempt(testAttemptID, testStudentID, testVocabSetID, ActivityKind("quiz"), 1, puzzleOrder(), 20, 14, now)
	assert.Error(t, err)

	_, err = NewAttempt(testAttemptID, testStudentID, testVocabSetID, KindPuzzlePath, 0, puzzleOrder(), 20, 14, now)
	assert.ErrorIs(t, err, ErrInvalidAttempt)

	_, err = NewAttempt(testAttemptID, testStudentID, testVocabSetID, KindPuzzlePath, 1, nil, 20, 14, now)
	assert.ErrorIs(t, err, ErrInvalidAttempt)

	_, err = NewAttempt(testAttemptID, testStudentID, testVocabSetID, KindPuzzlePath, 1, puzzleOrder(), 20, 25, now)
	assert.ErrorIs(t, err, ErrInvalidAttempt)
}

func TestNewAttempt_InitialState(t *testing.T) {
	a := newPuzzleAttempt(t)

	assert.Equal(t, StatusInProgress, a.Status)
	assert.Equal(t, 5, a.TotalItems)
	assert.Equal(t, 0, a.ItemsCompleted)
	assert.Equal(t, 0, a.CurrentItemIndex)
	assert.Equal(t, 0, a.RunningScore)

	current, ok := a.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, shared.ItemID("frag-1"), current)
}

func TestApplyScore_PassingRunReachesPendingConfirmation(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	// 4 + 3 + 4 + 2 + 1 = 14 of 20, exactly the passing threshold.
	scores := []int{4, 3, 4, 2, 1}
	for i, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, scores[i], now))
	}

	assert.Equal(t, StatusPendingConfirmation, a.Status)
	assert.Equal(t, 14, a.RunningScore)
	assert.Equal(t, 5, a.ItemsCompleted)
	assert.True(t, a.IsComplete())
	assert.True(t, a.IsPassing())
	assert.Equal(t, StatusPassed, a.ProspectiveStatus())
	assert.InDelta(t, 70.0, a.Percentage().Float64(), 0.001)
	require.NotNil(t, a.CompletedAt)
}

func TestApplyScore_FailingRunAlsoReachesPendingConfirmation(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	// 13 of 20 is one point short of the threshold.
	scores := []int{4, 3, 4, 2, 0}
	for i, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, scores[i], now))
	}

	assert.Equal(t, StatusPendingConfirmation, a.Status)
	assert.False(t, a.IsPassing())
	assert.Equal(t, StatusFailed, a.ProspectiveStatus())
}

func TestApplyScore_EnforcesItemOrder(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	err := a.ApplyScore("frag-3", 4, now)
	assert.ErrorIs(t, err, ErrItemOutOfOrder)

	require.NoError(t, a.ApplyScore("frag-1", 4, now))
	assert.Equal(t, 1, a.CurrentItemIndex)
}

func TestApplyScore_RejectsDuplicateItem(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	require.NoError(t, a.ApplyScore("frag-1", 4, now))
	err := a.ApplyScore("frag-1", 2, now)
	assert.ErrorIs(t, err, ErrItemAlreadyScored)
	assert.Equal(t, 4, a.RunningScore)
}

func TestApplyScore_RejectsUnknownItem(t *testing.T) {
	a := newPuzzleAttempt(t)

	err := a.ApplyScore("frag-99", 4, time.Now().UTC())
	assert.ErrorIs(t, err, ErrItemUnknown)
}

func TestApplyScore_RejectsOutOfRangeScore(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	err := a.ApplyScore("frag-1", -1, now)
	assert.ErrorIs(t, err, ErrScoreOutOfRange)

	err = a.ApplyScore("frag-1", 21, now)
	assert.ErrorIs(t, err, ErrScoreOutOfRange)
}

func TestApplyScore_RejectedOncePending(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	for _, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, 4, now))
	}

	err := a.ApplyScore("frag-1", 4, now)
	assert.ErrorIs(t, err, ErrNotInProgress)
}

func TestConfirmPassed(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	// Cannot confirm an in-progress attempt.
	assert.ErrorIs(t, a.ConfirmPassed(), ErrNotPending)

	for _, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, 4, now))
	}

	require.NoError(t, a.ConfirmPassed())
	assert.Equal(t, StatusPassed, a.Status)

	// A second confirm is a state error; the caller treats it as replay.
	assert.ErrorIs(t, a.ConfirmPassed(), ErrNotPending)
}

func TestConfirmPassed_RejectsBelowThreshold(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	for _, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, 2, now))
	}
	require.Equal(t, StatusPendingConfirmation, a.Status)

	err := a.ConfirmPassed()
	assert.ErrorIs(t, err, ErrBelowPassingScore)
	assert.Equal(t, StatusPendingConfirmation, a.Status)
}

func TestMarkDeclined(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	assert.ErrorIs(t, a.MarkDeclined(), ErrNotPending)

	for _, id := range puzzleOrder() {
		require.NoError(t, a.ApplyScore(id, 1, now))
	}

	require.NoError(t, a.MarkDeclined())
	assert.Equal(t, StatusDeclined, a.Status)
}

func TestRepairLedger(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	repaired, err := a.RepairLedger("frag-1", 4, now)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, 4, a.RunningScore)
	assert.Equal(t, 1, a.ItemsCompleted)

	// Already in the ledger: nothing to repair.
	repaired, err = a.RepairLedger("frag-1", 4, now)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, 4, a.RunningScore)
}

func TestScoreFor(t *testing.T) {
	a := newPuzzleAttempt(t)
	require.NoError(t, a.ApplyScore("frag-1", 3, time.Now().UTC()))

	score, ok := a.ScoreFor("frag-1")
	assert.True(t, ok)
	assert.Equal(t, 3, score)

	_, ok = a.ScoreFor("frag-2")
	assert.False(t, ok)
}

func TestNewItemResponse(t *testing.T) {
	a := newPuzzleAttempt(t)
	now := time.Now().UTC()

	resp, err := NewItemResponse("resp-1", a, "frag-1",
		map[string]interface{}{"arrangement": []string{"a", "b"}},
		map[string]interface{}{"score": 3}, 3, now)
	require.NoError(t, err)
	assert.Equal(t, a.ID, resp.AttemptID)
	assert.Equal(t, a.AttemptNumber, resp.AttemptNumber)
	assert.Equal(t, 3, resp.Score)

	_, err = NewItemResponse("", a, "frag-1", nil, nil, 3, now)
	assert.Error(t, err)

	_, err = NewItemResponse("resp-2", a, "frag-1", nil, nil, -1, now)
	assert.ErrorIs(t, err, ErrScoreOutOfRange)
}
