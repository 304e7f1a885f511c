// Package shared contains common domain types, errors, and events.
package shared

import (
	"regexp"
	"strings"
)

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return sid, nil
}

// VocabSetID identifies a vocabulary set an attempt is played against.
type VocabSetID string

// IsValid checks if the vocabulary set ID is a valid UUID.
func (v VocabSetID) IsValid() bool {
	return uuidRegex.MatchString(string(v))
}

// String returns the string representation.
func (v VocabSetID) String() string {
	return string(v)
}

// NewVocabSetID creates a new VocabSetID with validation.
func NewVocabSetID(id string) (VocabSetID, error) {
	vid := VocabSetID(strings.ToLower(strings.TrimSpace(id)))
	if !vid.IsValid() {
		return "", NewDomainError("shared", "NewVocabSetID", ErrInvalidID, "invalid vocabulary set ID format")
	}
	return vid, nil
}

// AssignmentID identifies the classroom assignment a progress record belongs to.
type AssignmentID string

// IsValid checks if the assignment ID is a valid UUID.
func (a AssignmentID) IsValid() bool {
	return uuidRegex.MatchString(string(a))
}

// String returns the string representation.
func (a AssignmentID) String() string {
	return string(a)
}

// NewAssignmentID creates a new AssignmentID with validation.
func NewAssignmentID(id string) (AssignmentID, error) {
	aid := AssignmentID(strings.ToLower(strings.TrimSpace(id)))
	if !aid.IsValid() {
		return "", NewDomainError("shared", "NewAssignmentID", ErrInvalidID, "invalid assignment ID format")
	}
	return aid, nil
}

// AttemptID identifies a single attempt record.
type AttemptID string

// IsValid checks if the attempt ID is a valid UUID.
func (a AttemptID) IsValid() bool {
	return uuidRegex.MatchString(string(a))
}

// String returns the string representation.
func (a AttemptID) String() string {
	return string(a)
}

// IsEmpty checks if the ID is empty.
func (a AttemptID) IsEmpty() bool {
	return a == ""
}

// NewAttemptID creates a new AttemptID with validation.
func NewAttemptID(id string) (AttemptID, error) {
	aid := AttemptID(strings.ToLower(strings.TrimSpace(id)))
	if !aid.IsValid() {
		return "", NewDomainError("shared", "NewAttemptID", ErrInvalidID, "invalid attempt ID format")
	}
	return aid, nil
}

// ItemID identifies a single item within an attempt's fixed ordering.
// Item IDs are produced by the external generator and treated as opaque
// non-empty strings here.
type ItemID string

// IsValid checks if the item ID is valid.
func (i ItemID) IsValid() bool {
	return strings.TrimSpace(string(i)) != ""
}

// String returns the string representation.
func (i ItemID) String() string {
	return string(i)
}

// Percentage represents a 0-100 score percentage.
type Percentage float64

// IsValid checks if the percentage is within range.
func (p Percentage) IsValid() bool {
	return p >= 0 && p <= 100
}

// Float64 returns the underlying float value.
func (p Percentage) Float64() float64 {
	return float64(p)
}

// AtLeast reports whether the percentage meets the given threshold.
func (p Percentage) AtLeast(threshold float64) bool {
	return float64(p) >= threshold
}

// NewPercentage computes a percentage from a score and a maximum.
// A zero maximum yields zero rather than dividing by it.
func NewPercentage(score, max int) Percentage {
	if max <= 0 {
		return 0
	}
	return Percentage(float64(score) * 100 / float64(max))
}
