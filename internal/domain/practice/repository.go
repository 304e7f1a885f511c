package practice

import (
	"context"

	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// AttemptRepository defines durable persistence for attempts. Implemented
// by the infrastructure layer; the domain has no knowledge of the storage.
//
// The storage layer enforces two uniqueness constraints the state machine
// relies on: at most one active attempt per (student, kind, vocabulary set),
// and attempt numbers that are never reused within that triple. Create
// surfaces a violation of the first as shared.ErrAlreadyExists so a losing
// racer can converge on the winner via GetActive.
type AttemptRepository interface {
	// Create persists a new attempt. Returns an error matching
	// shared.ErrAlreadyExists when an active attempt already exists for
	// the same (student, kind, vocabulary set).
	Create(ctx context.Context, attempt *Attempt) error

	// GetByID returns an attempt by its id. Returns an error matching
	// shared.ErrNotFound when no such attempt exists.
	GetByID(ctx context.Context, id shared.AttemptID) (*Attempt, error)

	// GetActive returns the in-progress or pending-confirmation attempt
	// for the triple, if any. Returns shared.ErrNotFound when none exists.
	GetActive(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind ActivityKind) (*Attempt, error)

	// MaxAttemptNumber returns the highest attempt number among surviving
	// rows for the triple. Zero when none. Declined attempts have their
	// rows deleted, so callers combine this with the progress record's
	// attempt counter to keep numbers strictly increasing.
	MaxAttemptNumber(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind ActivityKind) (int, error)

	// Update persists counter, ledger, and status changes of an attempt.
	Update(ctx context.Context, attempt *Attempt) error

	// Delete removes an attempt row wholesale (decline path).
	Delete(ctx context.Context, id shared.AttemptID) error
}

// ResponseRepository defines durable persistence for item responses.
type ResponseRepository interface {
	// Insert persists a response. Returns an error matching
	// shared.ErrAlreadyExists when a response for the same
	// (attempt, item, attempt number) already exists.
	Insert(ctx context.Context, response *ItemResponse) error

	// Get returns the response for (attempt, item, attempt number).
	// Returns shared.ErrNotFound when none exists.
	Get(ctx context.Context, attemptID shared.AttemptID, itemID shared.ItemID, attemptNumber int) (*ItemResponse, error)

	// ListByAttempt returns all responses of an attempt in submission order.
	ListByAttempt(ctx context.Context, attemptID shared.AttemptID) ([]*ItemResponse, error)

	// DeleteByAttempt removes every response of the attempt (decline
	// path). Returns the number of rows removed.
	DeleteByAttempt(ctx context.Context, attemptID shared.AttemptID, attemptNumber int) (int, error)
}

// ProgressRepository defines durable persistence for practice progress.
type ProgressRepository interface {
	// GetOrCreate returns the progress record for the triple, creating it
	// lazily on first touch.
	GetOrCreate(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*PracticeProgress, error)

	// Get returns the progress record. Returns shared.ErrNotFound when the
	// triple has never been touched.
	Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*PracticeProgress, error)

	// Update persists changes to a progress record.
	Update(ctx context.Context, progress *PracticeProgress) error
}

// CompletionRepository defines durable persistence for completion records.
type CompletionRepository interface {
	// Upsert inserts the record or, when the kind is already confirmed for
	// the triple, keeps the better score.
	Upsert(ctx context.Context, record *CompletionRecord) error

	// List returns all completion records for the triple.
	List(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) ([]*CompletionRecord, error)
}

// SessionStore is the ephemeral tier: the current-attempt pointer per
// (student, vocabulary set) with an activity-refreshed TTL. The store is
// never authoritative - losing it costs one extra durable read, never
// state. Implemented with Redis in the infrastructure layer.
type SessionStore interface {
	// Get returns the pointer for the pair. Returns an error matching
	// shared.ErrNotFound on a miss.
	Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) (*SessionPointer, error)

	// Put writes the pointer and resets its TTL.
	Put(ctx context.Context, pointer SessionPointer) error

	// Touch extends the TTL of an existing pointer without rewriting it.
	Touch(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error

	// Clear removes every cache entry for the pair. Invoked by confirm,
	// decline, and administrative resets.
	Clear(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error
}
