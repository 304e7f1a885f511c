package contentsvc

import (
	"testing"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func puzzleDescriptor(t *testing.T) practice.Descriptor {
	t.Helper()
	d, err := practice.DescriptorFor(practice.KindPuzzlePath)
	require.NoError(t, err)
	return d
}

func TestItemsToDomain(t *testing.T) {
	mapper := NewMapper()
	descriptor := puzzleDescriptor(t)

	dtos := []ItemDTO{
		{ID: "frag-1", Prompt: "Arrange the first fragment", MaxScore: 4},
		{ID: "frag-2", Prompt: "Arrange the second fragment", MaxScore: 4},
	}

	items, err := mapper.ItemsToDomain(dtos, practice.KindPuzzlePath, descriptor)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, shared.ItemID("frag-1"), items[0].ID)
	assert.Equal(t, practice.KindPuzzlePath, items[0].Kind)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, 1, items[1].Position)
	assert.Equal(t, 4, items[0].MaxScore)
}

func TestItemsToDomain_DropsBlankIDsAndNormalizesPositions(t *testing.T) {
	mapper := NewMapper()
	descriptor := puzzleDescriptor(t)

	dtos := []ItemDTO{
		{ID: "frag-1", MaxScore: 4},
		{ID: "  ", MaxScore: 4},
		{ID: "frag-3", MaxScore: 4},
	}

	items, err := mapper.ItemsToDomain(dtos, practice.KindPuzzlePath, descriptor)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Positions follow the surviving order, no gaps.
	assert.Equal(t, shared.ItemID("frag-3"), items[1].ID)
	assert.Equal(t, 1, items[1].Position)
}

func TestItemsToDomain_RejectsDuplicateIDs(t *testing.T) {
	mapper := NewMapper()
	descriptor := puzzleDescriptor(t)

	dtos := []ItemDTO{
		{ID: "frag-1", MaxScore: 4},
		{ID: "frag-1", MaxScore: 4},
	}

	_, err := mapper.ItemsToDomain(dtos, practice.KindPuzzlePath, descriptor)
	assert.ErrorIs(t, err, shared.ErrContentInvalidPayload)
}

func TestItemsToDomain_ClampsOutOfRangeMaxScore(t *testing.T) {
	mapper := NewMapper()
	descriptor := puzzleDescriptor(t)

	dtos := []ItemDTO{
		{ID: "frag-1", MaxScore: 99},
		{ID: "frag-2", MaxScore: 0},
		{ID: "frag-3", MaxScore: -5},
	}

	items, err := mapper.ItemsToDomain(dtos, practice.KindPuzzlePath, descriptor)
	require.NoError(t, err)

	for _, item := range items {
		assert.Equal(t, descriptor.ItemMaxScore, item.MaxScore)
	}
}

func TestEvaluationToDomain_ClampsScore(t *testing.T) {
	mapper := NewMapper()
	descriptor := puzzleDescriptor(t)

	eval := mapper.EvaluationToDomain(EvaluationDTO{Score: 3, Feedback: "good order"}, descriptor)
	assert.Equal(t, 3, eval.Score)
	assert.Equal(t, "good order", eval.Feedback)
	assert.False(t, eval.Fallback)

	// The external service can misbehave; scores never escape the range.
	eval = mapper.EvaluationToDomain(EvaluationDTO{Score: 42}, descriptor)
	assert.Equal(t, descriptor.ItemMaxScore, eval.Score)

	eval = mapper.EvaluationToDomain(EvaluationDTO{Score: -7}, descriptor)
	assert.Equal(t, 0, eval.Score)
}
