// Package validation implements the pre-evaluation shape check for raw
// answers. Each activity kind has its own expected answer shape; checking
// it here keeps malformed submissions away from the external evaluator.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"

	"github.com/go-playground/validator/v10"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER SHAPES
// ══════════════════════════════════════════════════════════════════════════════

// storyAnswer is the expected shape for story builder submissions: a free
// text story using the target words.
type storyAnswer struct {
	Story     string   `json:"story" validate:"required,min=10,max=5000"`
	UsedWords []string `json:"used_words" validate:"omitempty,dive,required"`
}

// conceptMapAnswer is the expected shape for concept map submissions: a set
// of directed connections between concepts.
type conceptMapAnswer struct {
	Connections []conceptConnection `json:"connections" validate:"required,min=1,dive"`
}

type conceptConnection struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Relation string `json:"relation" validate:"omitempty,max=200"`
}

// puzzlePathAnswer is the expected shape for puzzle path submissions: an
// ordered arrangement of fragment ids.
type puzzlePathAnswer struct {
	Arrangement []string `json:"arrangement" validate:"required,min=2,dive,required"`
}

// fillBlankAnswer is the expected shape for fill-in-the-blank submissions:
// one answer per blank.
type fillBlankAnswer struct {
	Answers []string `json:"answers" validate:"required,min=1,dive,required"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATOR
// ══════════════════════════════════════════════════════════════════════════════

// InputValidator implements content.InputValidator on go-playground
// validator tags. Pure and stateless; safe for concurrent use.
type InputValidator struct {
	validate *validator.Validate
}

// NewInputValidator creates a new InputValidator.
func NewInputValidator() *InputValidator {
	return &InputValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateInput checks the shape of a raw answer for the given kind.
func (v *InputValidator) ValidateInput(kind practice.ActivityKind, rawAnswer map[string]interface{}) content.ValidationResult {
	if len(rawAnswer) == 0 {
		return invalid("answer payload is empty")
	}

	var target interface{}
	switch kind {
	case practice.KindStoryBuilder:
		target = &storyAnswer{}
	case practice.KindConceptMap:
		target = &conceptMapAnswer{}
	case practice.KindPuzzlePath:
		target = &puzzlePathAnswer{}
	case practice.KindFillBlank:
		target = &fillBlankAnswer{}
	default:
		return invalid(fmt.Sprintf("unknown activity kind %q", kind))
	}

	if err := decodeInto(rawAnswer, target); err != nil {
		return invalid("answer payload has the wrong shape: " + err.Error())
	}

	if err := v.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		result := content.ValidationResult{Valid: false}
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				result.Errors = append(result.Errors, describeFieldError(fe))
			}
			return result
		}
		return invalid(err.Error())
	}

	return content.ValidationResult{Valid: true}
}

// decodeInto round-trips the generic map through JSON into the typed shape.
// Unknown extra fields are tolerated; wrong types are not.
func decodeInto(raw map[string]interface{}, target interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", fe.Field())
	case "min":
		return fmt.Sprintf("field %q is below the minimum of %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field %q exceeds the maximum of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field %q failed %q validation", fe.Field(), fe.Tag())
	}
}

func invalid(msg string) content.ValidationResult {
	return content.ValidationResult{
		Valid:  false,
		Errors: []string{msg},
	}
}
