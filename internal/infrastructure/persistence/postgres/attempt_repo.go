package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttemptRepository implements practice.AttemptRepository for PostgreSQL.
// The one-active partial index and the attempt-number uniqueness live in
// the schema; this type translates their violations into domain errors.
type AttemptRepository struct {
	conn *Connection
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(conn *Connection) *AttemptRepository {
	return &AttemptRepository{conn: conn}
}

const attemptColumns = `
	id, student_id, vocab_set_id, kind, attempt_number,
	total_items, items_completed, current_item_index,
	running_score, max_possible_score, passing_score,
	item_order, score_ledger, status,
	started_at, completed_at, duration_seconds
`

// Create persists a new attempt. A unique violation on the one-active
// partial index surfaces as shared.ErrAlreadyExists so the caller can
// converge on the winning attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *practice.Attempt) error {
	query := `
		INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	orderJSON, ledgerJSON, err := marshalAttemptJSON(a)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		a.ID.String(),
		a.StudentID.String(),
		a.VocabSetID.String(),
		a.Kind.String(),
		a.AttemptNumber,
		a.TotalItems,
		a.ItemsCompleted,
		a.CurrentItemIndex,
		a.RunningScore,
		a.MaxPossibleScore,
		a.PassingScore,
		orderJSON,
		ledgerJSON,
		string(a.Status),
		a.StartedAt,
		a.CompletedAt,
		a.DurationSeconds,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAttemptAlreadyActive
		}
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// GetByID returns an attempt by its id.
func (r *AttemptRepository) GetByID(ctx context.Context, id shared.AttemptID) (*practice.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id.String())
	return scanAttempt(row)
}

// GetActive returns the in-progress or pending-confirmation attempt for the
// (student, kind, vocabulary set) triple. The partial index guarantees at
// most one row qualifies.
func (r *AttemptRepository) GetActive(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*practice.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE student_id = $1 AND vocab_set_id = $2 AND kind = $3
		  AND status IN ('in_progress', 'pending_confirmation')
	`

	row := r.conn.QueryRow(ctx, query, studentID.String(), vocabSetID.String(), kind.String())
	return scanAttempt(row)
}

// MaxAttemptNumber returns the highest attempt number ever allocated for
// the triple. Declined attempts have their rows deleted, so the durable
// maximum alone can undercount; callers combine it with the progress
// record's attempt counter to keep numbers strictly increasing.
func (r *AttemptRepository) MaxAttemptNumber(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (int, error) {
	query := `
		SELECT COALESCE(MAX(attempt_number), 0)
		FROM attempts
		WHERE student_id = $1 AND vocab_set_id = $2 AND kind = $3
	`

	var max int
	err := r.conn.QueryRow(ctx, query, studentID.String(), vocabSetID.String(), kind.String()).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max attempt number: %w", err)
	}
	return max, nil
}

// Update persists counter, ledger, and status changes of an attempt.
func (r *AttemptRepository) Update(ctx context.Context, a *practice.Attempt) error {
	query := `
		UPDATE attempts SET
			items_completed = $1,
			current_item_index = $2,
			running_score = $3,
			score_ledger = $4,
			status = $5,
			completed_at = $6,
			duration_seconds = $7
		WHERE id = $8
	`

	_, ledgerJSON, err := marshalAttemptJSON(a)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		a.ItemsCompleted,
		a.CurrentItemIndex,
		a.RunningScore,
		ledgerJSON,
		string(a.Status),
		a.CompletedAt,
		a.DurationSeconds,
		a.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrAttemptNotFound
	}
	return nil
}

// Delete removes an attempt row wholesale. Missing rows are not an error:
// the decline path is idempotent.
func (r *AttemptRepository) Delete(ctx context.Context, id shared.AttemptID) error {
	query := `DELETE FROM attempts WHERE id = $1`

	if _, err := r.conn.Exec(ctx, query, id.String()); err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

func marshalAttemptJSON(a *practice.Attempt) ([]byte, []byte, error) {
	order := make([]string, len(a.ItemOrder))
	for i, id := range a.ItemOrder {
		order[i] = id.String()
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal item order: %w", err)
	}

	ledger := make(map[string]int, len(a.ScoreLedger))
	for id, score := range a.ScoreLedger {
		ledger[id.String()] = score
	}
	ledgerJSON, err := json.Marshal(ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal score ledger: %w", err)
	}

	return orderJSON, ledgerJSON, nil
}

func scanAttempt(row pgx.Row) (*practice.Attempt, error) {
	var (
		a          practice.Attempt
		id         string
		studentID  string
		vocabSetID string
		kind       string
		status     string
		orderJSON  []byte
		ledgerJSON []byte
	)

	err := row.Scan(
		&id,
		&studentID,
		&vocabSetID,
		&kind,
		&a.AttemptNumber,
		&a.TotalItems,
		&a.ItemsCompleted,
		&a.CurrentItemIndex,
		&a.RunningScore,
		&a.MaxPossibleScore,
		&a.PassingScore,
		&orderJSON,
		&ledgerJSON,
		&status,
		&a.StartedAt,
		&a.CompletedAt,
		&a.DurationSeconds,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}

	a.ID = shared.AttemptID(id)
	a.StudentID = shared.StudentID(studentID)
	a.VocabSetID = shared.VocabSetID(vocabSetID)
	a.Kind = practice.ActivityKind(kind)
	a.Status = practice.AttemptStatus(status)

	var order []string
	if err := json.Unmarshal(orderJSON, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item order: %w", err)
	}
	a.ItemOrder = make([]shared.ItemID, len(order))
	for i, itemID := range order {
		a.ItemOrder[i] = shared.ItemID(itemID)
	}

	var ledger map[string]int
	if err := json.Unmarshal(ledgerJSON, &ledger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal score ledger: %w", err)
	}
	a.ScoreLedger = make(map[shared.ItemID]int, len(ledger))
	for itemID, score := range ledger {
		a.ScoreLedger[shared.ItemID(itemID)] = score
	}

	return &a, nil
}
