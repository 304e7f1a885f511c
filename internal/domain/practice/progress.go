package practice

import (
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// KindStatus is the per-activity-kind status reported by the aggregator.
type KindStatus string

const (
	KindStatusNotStarted KindStatus = "not_started"
	KindStatusInProgress KindStatus = "in_progress"
	KindStatusPending    KindStatus = "pending_confirmation"
	KindStatusCompleted  KindStatus = "completed"
)

// ProgressStatus is the assignment-level status of a progress record.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// PracticeProgress is the one-per-(student, vocabulary set, assignment)
// aggregate tracking status across the four activity kinds. It is created
// lazily on first touch and never deleted. Completion facts come only from
// explicit confirmation, never from in-flight attempts.
type PracticeProgress struct {
	ID           string
	StudentID    shared.StudentID
	VocabSetID   shared.VocabSetID
	AssignmentID shared.AssignmentID

	KindStatuses   map[ActivityKind]KindStatus
	AttemptCounts  map[ActivityKind]int
	BestScores     map[ActivityKind]int
	ConfirmedKinds []ActivityKind

	Status ProgressStatus

	// TestUnlocked is monotonic: once 3 of 4 kinds are confirmed it stays
	// true even as further kinds are confirmed.
	TestUnlocked   bool
	TestUnlockedAt *time.Time

	// Mirror of the current session pointer, so the durable record alone
	// can rebuild a lost cache entry.
	CurrentKind      *ActivityKind
	CurrentAttemptID *shared.AttemptID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPracticeProgress creates an empty progress record.
func NewPracticeProgress(
	id string,
	studentID shared.StudentID,
	vocabSetID shared.VocabSetID,
	assignmentID shared.AssignmentID,
	now time.Time,
) (*PracticeProgress, error) {
	if id == "" || !studentID.IsValid() || !vocabSetID.IsValid() || !assignmentID.IsValid() {
		return nil, shared.NewDomainError("practice", "NewPracticeProgress", shared.ErrInvalidInput, "invalid progress identifiers")
	}

	statuses := make(map[ActivityKind]KindStatus, len(AllKinds()))
	for _, k := range AllKinds() {
		statuses[k] = KindStatusNotStarted
	}

	return &PracticeProgress{
		ID:             id,
		StudentID:      studentID,
		VocabSetID:     vocabSetID,
		AssignmentID:   assignmentID,
		KindStatuses:   statuses,
		AttemptCounts:  make(map[ActivityKind]int),
		BestScores:     make(map[ActivityKind]int),
		ConfirmedKinds: make([]ActivityKind, 0, len(AllKinds())),
		Status:         ProgressInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RecordAttemptStarted notes a new or resumed attempt and mirrors the
// session pointer onto the durable record.
func (p *PracticeProgress) RecordAttemptStarted(kind ActivityKind, attemptID shared.AttemptID, isNew bool, now time.Time) {
	if p.KindStatuses[kind] != KindStatusCompleted {
		p.KindStatuses[kind] = KindStatusInProgress
	}
	if isNew {
		p.AttemptCounts[kind]++
	}
	p.CurrentKind = &kind
	p.CurrentAttemptID = &attemptID
	p.UpdatedAt = now
}

// RecordAttemptPending notes that an attempt finished scoring and awaits
// confirmation.
func (p *PracticeProgress) RecordAttemptPending(kind ActivityKind, now time.Time) {
	if p.KindStatuses[kind] != KindStatusCompleted {
		p.KindStatuses[kind] = KindStatusPending
	}
	p.UpdatedAt = now
}

// IsKindConfirmed reports whether the kind has a confirmed completion.
func (p *PracticeProgress) IsKindConfirmed(kind ActivityKind) bool {
	for _, k := range p.ConfirmedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ConfirmedCount returns the number of confirmed kinds.
func (p *PracticeProgress) ConfirmedCount() int {
	return len(p.ConfirmedKinds)
}

// MarkKindConfirmed commits a kind: records the best score, adds it to the
// confirmed set, clears the session mirror, and flips the monotonic
// test-unlock flag when the 3-of-4 gate is reached. Returns true when the
// test became unlocked by this confirmation.
func (p *PracticeProgress) MarkKindConfirmed(kind ActivityKind, score int, now time.Time) bool {
	p.KindStatuses[kind] = KindStatusCompleted
	if score > p.BestScores[kind] {
		p.BestScores[kind] = score
	}
	if !p.IsKindConfirmed(kind) {
		p.ConfirmedKinds = append(p.ConfirmedKinds, kind)
	}
	p.ClearSessionMirror(now)

	if p.ConfirmedCount() >= TestUnlockRequirement && p.Status != ProgressCompleted {
		p.Status = ProgressCompleted
	}

	newlyUnlocked := false
	if !p.TestUnlocked && p.ConfirmedCount() >= TestUnlockRequirement {
		p.TestUnlocked = true
		unlocked := now
		p.TestUnlockedAt = &unlocked
		newlyUnlocked = true
	}
	p.UpdatedAt = now
	return newlyUnlocked
}

// RecordAttemptDeclined rolls the kind status back after a decline. The
// attempt row is gone, so unless the kind was already confirmed it returns
// to not started.
func (p *PracticeProgress) RecordAttemptDeclined(kind ActivityKind, now time.Time) {
	if p.KindStatuses[kind] != KindStatusCompleted {
		p.KindStatuses[kind] = KindStatusNotStarted
	}
	p.ClearSessionMirror(now)
}

// ClearSessionMirror drops the current-session pointer mirror.
func (p *PracticeProgress) ClearSessionMirror(now time.Time) {
	p.CurrentKind = nil
	p.CurrentAttemptID = nil
	p.UpdatedAt = now
}

// CompletionRecord is the durable proof that an activity kind was confirmed
// for a (student, vocabulary set, assignment). It exists if and only if
// some attempt of that kind reached passed through explicit confirmation.
type CompletionRecord struct {
	ID           string
	StudentID    shared.StudentID
	VocabSetID   shared.VocabSetID
	AssignmentID shared.AssignmentID
	Kind         ActivityKind
	BestScore    int
	Percentage   float64
	ConfirmedAt  time.Time
}

// NewCompletionRecord creates a completion record from a confirmed attempt.
func NewCompletionRecord(id string, attempt *Attempt, assignmentID shared.AssignmentID, confirmedAt time.Time) (*CompletionRecord, error) {
	if id == "" || attempt == nil || !assignmentID.IsValid() {
		return nil, shared.NewDomainError("practice", "NewCompletionRecord", shared.ErrInvalidInput, "invalid completion record input")
	}
	if attempt.Status != StatusPassed {
		return nil, ErrNotPending
	}
	return &CompletionRecord{
		ID:           id,
		StudentID:    attempt.StudentID,
		VocabSetID:   attempt.VocabSetID,
		AssignmentID: assignmentID,
		Kind:         attempt.Kind,
		BestScore:    attempt.RunningScore,
		Percentage:   attempt.Percentage().Float64(),
		ConfirmedAt:  confirmedAt,
	}, nil
}

// SessionPointer is the ephemeral mirror of the open attempt kept in the
// session cache: just enough to resume the UI without a durable read. It is
// never authoritative; every read is validated against the durable attempt
// status, and a pointer referencing a non-in-progress attempt is stale.
type SessionPointer struct {
	StudentID        shared.StudentID  `json:"student_id"`
	VocabSetID       shared.VocabSetID `json:"vocab_set_id"`
	Kind             ActivityKind      `json:"kind"`
	AttemptID        shared.AttemptID  `json:"attempt_id"`
	AttemptNumber    int               `json:"attempt_number"`
	CurrentItemIndex int               `json:"current_item_index"`
	RunningScore     int               `json:"running_score"`
	TotalItems       int               `json:"total_items"`
	RefreshedAt      time.Time         `json:"refreshed_at"`
}

// PointerFromAttempt builds a session pointer mirroring an attempt.
func PointerFromAttempt(a *Attempt, now time.Time) SessionPointer {
	return SessionPointer{
		StudentID:        a.StudentID,
		VocabSetID:       a.VocabSetID,
		Kind:             a.Kind,
		AttemptID:        a.ID,
		AttemptNumber:    a.AttemptNumber,
		CurrentItemIndex: a.CurrentItemIndex,
		RunningScore:     a.RunningScore,
		TotalItems:       a.TotalItems,
		RefreshedAt:      now,
	}
}

// Matches reports whether the pointer references the given attempt.
func (sp SessionPointer) Matches(a *Attempt) bool {
	return a != nil && sp.AttemptID == a.ID && sp.AttemptNumber == a.AttemptNumber
}
