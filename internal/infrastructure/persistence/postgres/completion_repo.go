package postgres

import (
	"context"
	"fmt"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRepository implements practice.CompletionRepository for
// PostgreSQL. Completion rows are the only source the aggregate status
// endpoint reads, so writes go through an upsert that can only improve the
// recorded score.
type CompletionRepository struct {
	conn *Connection
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(conn *Connection) *CompletionRepository {
	return &CompletionRepository{conn: conn}
}

// Upsert inserts the record or, when the kind is already confirmed for the
// triple, keeps whichever score is better.
func (r *CompletionRepository) Upsert(ctx context.Context, rec *practice.CompletionRecord) error {
	query := `
		INSERT INTO completion_records (
			id, student_id, vocab_set_id, assignment_id, kind,
			best_score, percentage, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, vocab_set_id, assignment_id, kind) DO UPDATE SET
			best_score = GREATEST(completion_records.best_score, EXCLUDED.best_score),
			percentage = GREATEST(completion_records.percentage, EXCLUDED.percentage)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.StudentID.String(),
		rec.VocabSetID.String(),
		rec.AssignmentID.String(),
		rec.Kind.String(),
		rec.BestScore,
		rec.Percentage,
		rec.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert completion record: %w", err)
	}
	return nil
}

// List returns all completion records for the triple.
func (r *CompletionRepository) List(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) ([]*practice.CompletionRecord, error) {
	query := `
		SELECT id, student_id, vocab_set_id, assignment_id, kind,
		       best_score, percentage, confirmed_at
		FROM completion_records
		WHERE student_id = $1 AND vocab_set_id = $2 AND assignment_id = $3
		ORDER BY confirmed_at ASC
	`

	rows, err := r.conn.Query(ctx, query, studentID.String(), vocabSetID.String(), assignmentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion records: %w", err)
	}
	defer rows.Close()

	var records []*practice.CompletionRecord
	for rows.Next() {
		var (
			rec          practice.CompletionRecord
			sid, vid     string
			aid, kindStr string
		)
		err := rows.Scan(&rec.ID, &sid, &vid, &aid, &kindStr, &rec.BestScore, &rec.Percentage, &rec.ConfirmedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion record: %w", err)
		}
		rec.StudentID = shared.StudentID(sid)
		rec.VocabSetID = shared.VocabSetID(vid)
		rec.AssignmentID = shared.AssignmentID(aid)
		rec.Kind = practice.ActivityKind(kindStr)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
