package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ITEM SET REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ItemSetRepository implements content.ItemStore for PostgreSQL. The full
// item list, answer keys included, lives in one JSONB column: items are
// only ever read and written as a whole set.
type ItemSetRepository struct {
	conn *Connection
}

// NewItemSetRepository creates a new ItemSetRepository.
func NewItemSetRepository(conn *Connection) *ItemSetRepository {
	return &ItemSetRepository{conn: conn}
}

// GetItemSet returns the stored set for the (vocabulary set, kind) pair.
func (r *ItemSetRepository) GetItemSet(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*content.ItemSet, error) {
	query := `
		SELECT items, generated_at
		FROM item_sets
		WHERE vocab_set_id = $1 AND kind = $2
	`

	set := content.ItemSet{
		VocabSetID: vocabSetID,
		Kind:       kind,
	}
	var itemsJSON []byte

	err := r.conn.QueryRow(ctx, query, vocabSetID.String(), kind.String()).Scan(&itemsJSON, &set.GeneratedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("content", "GetItemSet", shared.ErrNotFound, "item set not generated yet")
		}
		return nil, fmt.Errorf("failed to query item set: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &set.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	return &set, nil
}

// SaveItemSet stores a generated set. Concurrent saves for the same pair
// converge on the first writer: the insert is a no-op when a row exists.
func (r *ItemSetRepository) SaveItemSet(ctx context.Context, set *content.ItemSet) error {
	query := `
		INSERT INTO item_sets (vocab_set_id, kind, items, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vocab_set_id, kind) DO NOTHING
	`

	itemsJSON, err := json.Marshal(set.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	_, err = r.conn.Exec(ctx, query,
		set.VocabSetID.String(),
		set.Kind.String(),
		itemsJSON,
		set.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save item set: %w", err)
	}
	return nil
}
