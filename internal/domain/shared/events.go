// Package shared contains common domain types, errors, and events.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents a state transition of the
// attempt lifecycle that downstream layers (notifications, analytics) may
// subscribe to without touching the core.
const (
	// Attempt lifecycle events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptResumed   EventType = "attempt.resumed"
	EventItemSubmitted    EventType = "attempt.item_submitted"
	EventAttemptCompleted EventType = "attempt.completed"
	EventAttemptConfirmed EventType = "attempt.confirmed"
	EventAttemptDeclined  EventType = "attempt.declined"

	// Progress events
	EventKindCompleted EventType = "progress.kind_completed"
	EventTestUnlocked  EventType = "progress.test_unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// AttemptStartedEvent is emitted when a fresh attempt is created.
type AttemptStartedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	VocabSetID    string `json:"vocab_set_id"`
	Kind          string `json:"kind"`
	AttemptNumber int    `json:"attempt_number"`
	TotalItems    int    `json:"total_items"`
}

// Payload implements Event interface.
func (e AttemptStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"vocab_set_id":   e.VocabSetID,
		"kind":           e.Kind,
		"attempt_number": e.AttemptNumber,
		"total_items":    e.TotalItems,
	}
}

// NewAttemptStartedEvent creates an AttemptStartedEvent.
func NewAttemptStartedEvent(attemptID, studentID, vocabSetID, kind string, attemptNumber, totalItems int) AttemptStartedEvent {
	return AttemptStartedEvent{
		BaseEvent:     NewBaseEvent(EventAttemptStarted, attemptID),
		StudentID:     studentID,
		VocabSetID:    vocabSetID,
		Kind:          kind,
		AttemptNumber: attemptNumber,
		TotalItems:    totalItems,
	}
}

// AttemptCompletedEvent is emitted when the last item of an attempt is
// scored and the attempt moves to pending confirmation.
type AttemptCompletedEvent struct {
	BaseEvent
	StudentID  string  `json:"student_id"`
	Kind       string  `json:"kind"`
	Score      int     `json:"score"`
	MaxScore   int     `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Passing    bool    `json:"passing"`
}

// Payload implements Event interface.
func (e AttemptCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"kind":       e.Kind,
		"score":      e.Score,
		"max_score":  e.MaxScore,
		"percentage": e.Percentage,
		"passing":    e.Passing,
	}
}

// NewAttemptCompletedEvent creates an AttemptCompletedEvent.
func NewAttemptCompletedEvent(attemptID, studentID, kind string, score, maxScore int, percentage float64, passing bool) AttemptCompletedEvent {
	return AttemptCompletedEvent{
		BaseEvent:  NewBaseEvent(EventAttemptCompleted, attemptID),
		StudentID:  studentID,
		Kind:       kind,
		Score:      score,
		MaxScore:   maxScore,
		Percentage: percentage,
		Passing:    passing,
	}
}

// AttemptConfirmedEvent is emitted when a passing attempt is committed.
type AttemptConfirmedEvent struct {
	BaseEvent
	StudentID  string  `json:"student_id"`
	Kind       string  `json:"kind"`
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
}

// Payload implements Event interface.
func (e AttemptConfirmedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"kind":       e.Kind,
		"score":      e.Score,
		"percentage": e.Percentage,
	}
}

// NewAttemptConfirmedEvent creates an AttemptConfirmedEvent.
func NewAttemptConfirmedEvent(attemptID, studentID, kind string, score int, percentage float64) AttemptConfirmedEvent {
	return AttemptConfirmedEvent{
		BaseEvent:  NewBaseEvent(EventAttemptConfirmed, attemptID),
		StudentID:  studentID,
		Kind:       kind,
		Score:      score,
		Percentage: percentage,
	}
}

// AttemptDeclinedEvent is emitted when a scored attempt is rolled back.
type AttemptDeclinedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	Kind          string `json:"kind"`
	AttemptNumber int    `json:"attempt_number"`
}

// Payload implements Event interface.
func (e AttemptDeclinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"kind":           e.Kind,
		"attempt_number": e.AttemptNumber,
	}
}

// NewAttemptDeclinedEvent creates an AttemptDeclinedEvent.
func NewAttemptDeclinedEvent(attemptID, studentID, kind string, attemptNumber int) AttemptDeclinedEvent {
	return AttemptDeclinedEvent{
		BaseEvent:     NewBaseEvent(EventAttemptDeclined, attemptID),
		StudentID:     studentID,
		Kind:          kind,
		AttemptNumber: attemptNumber,
	}
}

// TestUnlockedEvent is emitted once when the third activity kind is
// confirmed and the downstream test becomes available.
type TestUnlockedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	VocabSetID     string `json:"vocab_set_id"`
	AssignmentID   string `json:"assignment_id"`
	ConfirmedKinds int    `json:"confirmed_kinds"`
}

// Payload implements Event interface.
func (e TestUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"vocab_set_id":    e.VocabSetID,
		"assignment_id":   e.AssignmentID,
		"confirmed_kinds": e.ConfirmedKinds,
	}
}

// NewTestUnlockedEvent creates a TestUnlockedEvent.
func NewTestUnlockedEvent(progressID, studentID, vocabSetID, assignmentID string, confirmedKinds int) TestUnlockedEvent {
	return TestUnlockedEvent{
		BaseEvent:      NewBaseEvent(EventTestUnlocked, progressID),
		StudentID:      studentID,
		VocabSetID:     vocabSetID,
		AssignmentID:   assignmentID,
		ConfirmedKinds: confirmedKinds,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to all subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
