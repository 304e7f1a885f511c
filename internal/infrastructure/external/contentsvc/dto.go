package contentsvc

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// GenerateRequestDTO is the item-generation request payload.
type GenerateRequestDTO struct {
	VocabSetID string `json:"vocab_set_id"`
	Kind       string `json:"kind"`
	ItemCount  int    `json:"item_count"`
}

// EvaluateRequestDTO is the answer-evaluation request payload. The answer
// key travels with the request so the evaluator service stays stateless.
type EvaluateRequestDTO struct {
	Kind      string                 `json:"kind"`
	ItemID    string                 `json:"item_id"`
	Prompt    string                 `json:"prompt"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	AnswerKey map[string]interface{} `json:"answer_key,omitempty"`
	MaxScore  int                    `json:"max_score"`
	Answer    map[string]interface{} `json:"answer"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ItemDTO is one generated item as returned by the content service.
type ItemDTO struct {
	ID        string                 `json:"id"`
	Position  int                    `json:"position"`
	Prompt    string                 `json:"prompt"`
	Payload   map[string]interface{} `json:"payload"`
	AnswerKey map[string]interface{} `json:"answer_key"`
	MaxScore  int                    `json:"max_score"`
}

// GenerateResponseDTO is the item-generation response payload.
type GenerateResponseDTO struct {
	Items []ItemDTO `json:"items"`
}

// EvaluationDTO is the evaluation response payload.
type EvaluationDTO struct {
	Score     int    `json:"score"`
	Feedback  string `json:"feedback"`
	Rationale string `json:"rationale"`
}

// APIErrorDTO is the error envelope the content service returns on 4xx/5xx.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("content service error %s: %s", e.Code, e.Message)
}

// IsServerError reports whether the error indicates a service-side fault
// worth retrying.
func (e *APIErrorDTO) IsServerError() bool {
	switch e.Code {
	case "SERVER_ERROR", "TEMPORARILY_UNAVAILABLE", "OVERLOADED":
		return true
	}
	return false
}
