package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements practice.ProgressRepository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	id, student_id, vocab_set_id, assignment_id,
	kind_statuses, attempt_counts, best_scores, confirmed_kinds,
	status, test_unlocked, test_unlocked_at,
	current_kind, current_attempt_id,
	created_at, updated_at
`

// GetOrCreate returns the progress record for the triple, inserting an
// empty one on first touch. Concurrent first touches converge on the
// winner via the triple's unique constraint.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*practice.PracticeProgress, error) {
	progress, err := r.Get(ctx, studentID, vocabSetID, assignmentID)
	if err == nil {
		return progress, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	fresh, err := practice.NewPracticeProgress(uuid.NewString(), studentID, vocabSetID, assignmentID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.insert(ctx, fresh); err != nil {
		if IsUniqueViolation(err) {
			// Lost the first-touch race; the winner's row is authoritative.
			return r.Get(ctx, studentID, vocabSetID, assignmentID)
		}
		return nil, err
	}
	return fresh, nil
}

// Get returns the progress record for the triple.
func (r *ProgressRepository) Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*practice.PracticeProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM practice_progress
		WHERE student_id = $1 AND vocab_set_id = $2 AND assignment_id = $3
	`

	row := r.conn.QueryRow(ctx, query, studentID.String(), vocabSetID.String(), assignmentID.String())
	return scanProgress(row)
}

// Update persists changes to a progress record.
func (r *ProgressRepository) Update(ctx context.Context, p *practice.PracticeProgress) error {
	query := `
		UPDATE practice_progress SET
			kind_statuses = $1,
			attempt_counts = $2,
			best_scores = $3,
			confirmed_kinds = $4,
			status = $5,
			test_unlocked = $6,
			test_unlocked_at = $7,
			current_kind = $8,
			current_attempt_id = $9,
			updated_at = $10
		WHERE id = $11
	`

	cols, err := marshalProgressJSON(p)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		cols.kindStatuses,
		cols.attemptCounts,
		cols.bestScores,
		cols.confirmedKinds,
		string(p.Status),
		p.TestUnlocked,
		p.TestUnlockedAt,
		currentKindValue(p),
		currentAttemptValue(p),
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}

func (r *ProgressRepository) insert(ctx context.Context, p *practice.PracticeProgress) error {
	query := `
		INSERT INTO practice_progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	cols, err := marshalProgressJSON(p)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		p.ID,
		p.StudentID.String(),
		p.VocabSetID.String(),
		p.AssignmentID.String(),
		cols.kindStatuses,
		cols.attemptCounts,
		cols.bestScores,
		cols.confirmedKinds,
		string(p.Status),
		p.TestUnlocked,
		p.TestUnlockedAt,
		currentKindValue(p),
		currentAttemptValue(p),
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

type progressJSONColumns struct {
	kindStatuses   []byte
	attemptCounts  []byte
	bestScores     []byte
	confirmedKinds []byte
}

func marshalProgressJSON(p *practice.PracticeProgress) (progressJSONColumns, error) {
	var cols progressJSONColumns
	var err error

	statuses := make(map[string]string, len(p.KindStatuses))
	for kind, status := range p.KindStatuses {
		statuses[kind.String()] = string(status)
	}
	if cols.kindStatuses, err = json.Marshal(statuses); err != nil {
		return cols, fmt.Errorf("failed to marshal kind statuses: %w", err)
	}

	counts := make(map[string]int, len(p.AttemptCounts))
	for kind, count := range p.AttemptCounts {
		counts[kind.String()] = count
	}
	if cols.attemptCounts, err = json.Marshal(counts); err != nil {
		return cols, fmt.Errorf("failed to marshal attempt counts: %w", err)
	}

	scores := make(map[string]int, len(p.BestScores))
	for kind, score := range p.BestScores {
		scores[kind.String()] = score
	}
	if cols.bestScores, err = json.Marshal(scores); err != nil {
		return cols, fmt.Errorf("failed to marshal best scores: %w", err)
	}

	confirmed := make([]string, len(p.ConfirmedKinds))
	for i, kind := range p.ConfirmedKinds {
		confirmed[i] = kind.String()
	}
	if cols.confirmedKinds, err = json.Marshal(confirmed); err != nil {
		return cols, fmt.Errorf("failed to marshal confirmed kinds: %w", err)
	}

	return cols, nil
}

func currentKindValue(p *practice.PracticeProgress) interface{} {
	if p.CurrentKind == nil {
		return nil
	}
	return p.CurrentKind.String()
}

func currentAttemptValue(p *practice.PracticeProgress) interface{} {
	if p.CurrentAttemptID == nil {
		return nil
	}
	return p.CurrentAttemptID.String()
}

func scanProgress(row pgx.Row) (*practice.PracticeProgress, error) {
	var (
		p                practice.PracticeProgress
		studentID        string
		vocabSetID       string
		assignmentID     string
		statusesJSON     []byte
		countsJSON       []byte
		scoresJSON       []byte
		confirmedJSON    []byte
		status           string
		currentKind      *string
		currentAttemptID *string
	)

	err := row.Scan(
		&p.ID,
		&studentID,
		&vocabSetID,
		&assignmentID,
		&statusesJSON,
		&countsJSON,
		&scoresJSON,
		&confirmedJSON,
		&status,
		&p.TestUnlocked,
		&p.TestUnlockedAt,
		&currentKind,
		&currentAttemptID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}

	p.StudentID = shared.StudentID(studentID)
	p.VocabSetID = shared.VocabSetID(vocabSetID)
	p.AssignmentID = shared.AssignmentID(assignmentID)
	p.Status = practice.ProgressStatus(status)

	var statuses map[string]string
	if err := json.Unmarshal(statusesJSON, &statuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kind statuses: %w", err)
	}
	p.KindStatuses = make(map[practice.ActivityKind]practice.KindStatus, len(statuses))
	for kind, st := range statuses {
		p.KindStatuses[practice.ActivityKind(kind)] = practice.KindStatus(st)
	}

	var counts map[string]int
	if err := json.Unmarshal(countsJSON, &counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempt counts: %w", err)
	}
	p.AttemptCounts = make(map[practice.ActivityKind]int, len(counts))
	for kind, count := range counts {
		p.AttemptCounts[practice.ActivityKind(kind)] = count
	}

	var scores map[string]int
	if err := json.Unmarshal(scoresJSON, &scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal best scores: %w", err)
	}
	p.BestScores = make(map[practice.ActivityKind]int, len(scores))
	for kind, score := range scores {
		p.BestScores[practice.ActivityKind(kind)] = score
	}

	var confirmed []string
	if err := json.Unmarshal(confirmedJSON, &confirmed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confirmed kinds: %w", err)
	}
	p.ConfirmedKinds = make([]practice.ActivityKind, len(confirmed))
	for i, kind := range confirmed {
		p.ConfirmedKinds[i] = practice.ActivityKind(kind)
	}

	if currentKind != nil {
		kind := practice.ActivityKind(*currentKind)
		p.CurrentKind = &kind
	}
	if currentAttemptID != nil {
		attemptID := shared.AttemptID(*currentAttemptID)
		p.CurrentAttemptID = &attemptID
	}

	return &p, nil
}
