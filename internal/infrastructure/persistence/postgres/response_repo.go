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
// RESPONSE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ResponseRepository implements practice.ResponseRepository for PostgreSQL.
// The (attempt, item, attempt_number) uniqueness backing duplicate-submission
// detection is enforced by the schema.
type ResponseRepository struct {
	conn *Connection
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(conn *Connection) *ResponseRepository {
	return &ResponseRepository{conn: conn}
}

const responseColumns = `
	id, attempt_id, student_id, item_id, attempt_number,
	answer, evaluation, score, created_at
`

// Insert persists a response. A duplicate (attempt, item, attempt number)
// surfaces as shared.ErrAlreadyExists; the caller answers the duplicate
// with the recorded score.
func (r *ResponseRepository) Insert(ctx context.Context, resp *practice.ItemResponse) error {
	query := `
		INSERT INTO item_responses (` + responseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	answerJSON, err := json.Marshal(resp.Answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	evalJSON, err := json.Marshal(resp.Evaluation)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	_, err = r.conn.Exec(ctx, query,
		resp.ID,
		resp.AttemptID.String(),
		resp.StudentID.String(),
		resp.ItemID.String(),
		resp.AttemptNumber,
		answerJSON,
		evalJSON,
		resp.Score,
		resp.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("practice", "InsertResponse", shared.ErrAlreadyExists, "response already recorded for this item")
		}
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// Get returns the response for (attempt, item, attempt number).
func (r *ResponseRepository) Get(ctx context.Context, attemptID shared.AttemptID, itemID shared.ItemID, attemptNumber int) (*practice.ItemResponse, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM item_responses
		WHERE attempt_id = $1 AND item_id = $2 AND attempt_number = $3
	`

	row := r.conn.QueryRow(ctx, query, attemptID.String(), itemID.String(), attemptNumber)
	return scanResponse(row)
}

// ListByAttempt returns all responses of an attempt in submission order.
func (r *ResponseRepository) ListByAttempt(ctx context.Context, attemptID shared.AttemptID) ([]*practice.ItemResponse, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM item_responses
		WHERE attempt_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.conn.Query(ctx, query, attemptID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []*practice.ItemResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// DeleteByAttempt removes every response of the attempt and returns the
// number of rows removed. Zero rows is not an error.
func (r *ResponseRepository) DeleteByAttempt(ctx context.Context, attemptID shared.AttemptID, attemptNumber int) (int, error) {
	query := `DELETE FROM item_responses WHERE attempt_id = $1 AND attempt_number = $2`

	result, err := r.conn.Exec(ctx, query, attemptID.String(), attemptNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to delete responses: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanResponse(row pgx.Row) (*practice.ItemResponse, error) {
	var (
		resp       practice.ItemResponse
		attemptID  string
		studentID  string
		itemID     string
		answerJSON []byte
		evalJSON   []byte
	)

	err := row.Scan(
		&resp.ID,
		&attemptID,
		&studentID,
		&itemID,
		&resp.AttemptNumber,
		&answerJSON,
		&evalJSON,
		&resp.Score,
		&resp.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("practice", "FindResponse", shared.ErrNotFound, "response not found")
		}
		return nil, fmt.Errorf("failed to scan response: %w", err)
	}

	resp.AttemptID = shared.AttemptID(attemptID)
	resp.StudentID = shared.StudentID(studentID)
	resp.ItemID = shared.ItemID(itemID)

	if err := json.Unmarshal(answerJSON, &resp.Answer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answer: %w", err)
	}
	if err := json.Unmarshal(evalJSON, &resp.Evaluation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}

	return &resp, nil
}
