package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ATTEMPTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create attempts and item_responses tables
-- Version: 001

-- Attempts: one row per run through an activity's item list.
CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    vocab_set_id UUID NOT NULL,
    kind VARCHAR(30) NOT NULL,
    attempt_number INTEGER NOT NULL,
    total_items INTEGER NOT NULL,
    items_completed INTEGER NOT NULL DEFAULT 0,
    current_item_index INTEGER NOT NULL DEFAULT 0,
    running_score INTEGER NOT NULL DEFAULT 0,
    max_possible_score INTEGER NOT NULL,
    passing_score INTEGER NOT NULL,
    item_order JSONB NOT NULL,
    score_ledger JSONB NOT NULL DEFAULT '{}'::jsonb,
    status VARCHAR(30) NOT NULL DEFAULT 'in_progress',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,
    duration_seconds INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_attempt_status CHECK (status IN ('in_progress', 'pending_confirmation', 'passed')),
    CONSTRAINT valid_attempt_kind CHECK (kind IN ('story_builder', 'concept_map', 'puzzle_path', 'fill_blank')),
    CONSTRAINT valid_attempt_number CHECK (attempt_number >= 1),
    CONSTRAINT valid_counters CHECK (
        items_completed >= 0 AND items_completed <= total_items
        AND current_item_index >= 0
        AND running_score >= 0 AND running_score <= max_possible_score
    ),

    -- Attempt numbers are never reused within the triple, even after a
    -- declined attempt's row is deleted.
    UNIQUE (student_id, kind, vocab_set_id, attempt_number)
);

-- At most one active attempt per (student, kind, vocabulary set). A losing
-- creation racer hits this index and converges on the winner.
CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_active
    ON attempts (student_id, kind, vocab_set_id)
    WHERE status IN ('in_progress', 'pending_confirmation');

CREATE INDEX IF NOT EXISTS idx_attempts_student_set ON attempts (student_id, vocab_set_id);
CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts (started_at DESC);

-- Item responses: the immutable record of each scored submission. No
-- foreign key to attempts: the decline path deletes responses and the
-- attempt in one transaction, and the repair path must be able to read a
-- response even when the attempt row is mid-rewrite.
CREATE TABLE IF NOT EXISTS item_responses (
    id UUID PRIMARY KEY,
    attempt_id UUID NOT NULL,
    student_id UUID NOT NULL,
    item_id VARCHAR(100) NOT NULL,
    attempt_number INTEGER NOT NULL,
    answer JSONB NOT NULL DEFAULT '{}'::jsonb,
    evaluation JSONB NOT NULL DEFAULT '{}'::jsonb,
    score INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_response_score CHECK (score >= 0),

    -- Re-delivery of the same submission is detected here and answered
    -- with the recorded score instead of a second evaluation.
    UNIQUE (attempt_id, item_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_item_responses_attempt ON item_responses (attempt_id, created_at);
CREATE INDEX IF NOT EXISTS idx_item_responses_student ON item_responses (student_id);
`

const migration001Down = `
DROP TABLE IF EXISTS item_responses;
DROP TABLE IF EXISTS attempts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create practice_progress and completion_records tables
-- Version: 002

-- One progress record per (student, vocabulary set, assignment), created
-- lazily on first touch and never deleted.
CREATE TABLE IF NOT EXISTS practice_progress (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    vocab_set_id UUID NOT NULL,
    assignment_id UUID NOT NULL,
    kind_statuses JSONB NOT NULL DEFAULT '{}'::jsonb,
    attempt_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
    best_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
    confirmed_kinds JSONB NOT NULL DEFAULT '[]'::jsonb,
    status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
    test_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    test_unlocked_at TIMESTAMP WITH TIME ZONE,
    current_kind VARCHAR(30),
    current_attempt_id UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_progress_status CHECK (status IN ('in_progress', 'completed')),

    UNIQUE (student_id, vocab_set_id, assignment_id)
);

CREATE INDEX IF NOT EXISTS idx_practice_progress_student ON practice_progress (student_id);
CREATE INDEX IF NOT EXISTS idx_practice_progress_assignment ON practice_progress (assignment_id);

-- Completion records: the durable proof a kind was explicitly confirmed.
-- The aggregate status endpoint reads these and nothing else.
CREATE TABLE IF NOT EXISTS completion_records (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    vocab_set_id UUID NOT NULL,
    assignment_id UUID NOT NULL,
    kind VARCHAR(30) NOT NULL,
    best_score INTEGER NOT NULL,
    percentage DOUBLE PRECISION NOT NULL,
    confirmed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_completion_kind CHECK (kind IN ('story_builder', 'concept_map', 'puzzle_path', 'fill_blank')),
    CONSTRAINT valid_completion_score CHECK (best_score >= 0),

    UNIQUE (student_id, vocab_set_id, assignment_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_completion_records_triple
    ON completion_records (student_id, vocab_set_id, assignment_id);
`

const migration002Down = `
DROP TABLE IF EXISTS completion_records;
DROP TABLE IF EXISTS practice_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ITEM SETS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create item_sets table
-- Version: 003

-- Generated item lists, one per (vocabulary set, kind). Generation is
-- idempotent: concurrent generators converge on the first writer via the
-- primary key.
CREATE TABLE IF NOT EXISTS item_sets (
    vocab_set_id UUID NOT NULL,
    kind VARCHAR(30) NOT NULL,
    items JSONB NOT NULL,
    generated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_item_set_kind CHECK (kind IN ('story_builder', 'concept_map', 'puzzle_path', 'fill_blank')),

    PRIMARY KEY (vocab_set_id, kind)
);
`

const migration003Down = `
DROP TABLE IF EXISTS item_sets;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// ErrMigrationFailed indicates a migration failure.
var ErrMigrationFailed = fmt.Errorf("postgres: migration failed")

// GetMigrations returns all migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_attempts",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_progress",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_item_sets",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}
	return result, nil
}
