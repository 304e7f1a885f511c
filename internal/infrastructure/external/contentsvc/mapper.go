package contentsvc

import (
	"strings"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// Mapper converts content service DTOs to domain types. Mapping is defensive:
// the service is external and its payloads are clamped and filtered before
// they touch an attempt.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ItemsToDomain converts generated item DTOs to domain items. Items with a
// blank id are dropped; positions are normalized to the slice order and
// per-item maxima clamped to the kind's ceiling.
func (m *Mapper) ItemsToDomain(dtos []ItemDTO, kind practice.ActivityKind, descriptor practice.Descriptor) ([]content.Item, error) {
	items := make([]content.Item, 0, len(dtos))
	seen := make(map[string]struct{}, len(dtos))

	for _, dto := range dtos {
		id := strings.TrimSpace(dto.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, shared.ErrContentInvalidPayload
		}
		seen[id] = struct{}{}

		maxScore := dto.MaxScore
		if maxScore <= 0 || maxScore > descriptor.ItemMaxScore {
			maxScore = descriptor.ItemMaxScore
		}

		items = append(items, content.Item{
			ID:        shared.ItemID(id),
			Kind:      kind,
			Position:  len(items),
			Prompt:    dto.Prompt,
			Payload:   dto.Payload,
			AnswerKey: dto.AnswerKey,
			MaxScore:  maxScore,
		})
	}
	return items, nil
}

// EvaluationToDomain converts an evaluation DTO to a domain evaluation with
// the score clamped to the kind's per-item range.
func (m *Mapper) EvaluationToDomain(dto EvaluationDTO, descriptor practice.Descriptor) content.Evaluation {
	return content.Evaluation{
		Score:     descriptor.ClampScore(dto.Score),
		Feedback:  dto.Feedback,
		Rationale: dto.Rationale,
	}
}
