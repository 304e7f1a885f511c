package practice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, kind := range AllKinds() {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("crossword")
	assert.Error(t, err)

	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestDescriptorFor_AllKindsRegistered(t *testing.T) {
	for _, kind := range AllKinds() {
		d, err := DescriptorFor(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, d.Kind)
		assert.Greater(t, d.ItemCount, 0)
		assert.Greater(t, d.ItemMaxScore, 0)
	}

	_, err := DescriptorFor(ActivityKind("crossword"))
	assert.Error(t, err)
}

func TestDescriptor_PassingScoreRoundsUp(t *testing.T) {
	tests := []struct {
		kind        ActivityKind
		items       int
		wantMax     int
		wantPassing int
	}{
		// 5 fragments at 4 points: 70% of 20 is exactly 14.
		{KindPuzzlePath, 5, 20, 14},
		// 5 prompts at 10 points: 70% of 50 is exactly 35.
		{KindStoryBuilder, 5, 50, 35},
		// 8 connections at 5 points: 70% of 40 is exactly 28.
		{KindConceptMap, 8, 40, 28},
		// 10 blanks at 2 points: 70% of 20 is exactly 14.
		{KindFillBlank, 10, 20, 14},
		// 3 fragments at 4 points: 70% of 12 is 8.4, rounded up to 9.
		{KindPuzzlePath, 3, 12, 9},
	}

	for _, tt := range tests {
		d, err := DescriptorFor(tt.kind)
		require.NoError(t, err)
		assert.Equal(t, tt.wantMax, d.MaxPossibleScore(tt.items), "max for %s/%d", tt.kind, tt.items)
		assert.Equal(t, tt.wantPassing, d.PassingScore(tt.items), "passing for %s/%d", tt.kind, tt.items)
	}
}

func TestDescriptor_ClampScore(t *testing.T) {
	d, err := DescriptorFor(KindPuzzlePath)
	require.NoError(t, err)

	assert.Equal(t, 0, d.ClampScore(-3))
	assert.Equal(t, 2, d.ClampScore(2))
	assert.Equal(t, 4, d.ClampScore(9))
}
