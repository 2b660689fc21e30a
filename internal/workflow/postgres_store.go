package workflow

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists workflow states in PostgreSQL. One row per
// transaction; Put is an upsert since the engine serializes writers
// per transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed workflow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the workflow_states table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_states (
			transaction_id VARCHAR(64) PRIMARY KEY,
			stage          VARCHAR(24) NOT NULL,
			outcome        VARCHAR(10) NOT NULL DEFAULT '',
			level          VARCHAR(10) NOT NULL,
			score          NUMERIC(5,2) NOT NULL DEFAULT 0,
			quiz_id        VARCHAR(64),
			quiz_passed    BOOLEAN NOT NULL DEFAULT FALSE,
			alert_id       VARCHAR(64),
			cooloff_until  TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, st *State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_states
			(transaction_id, stage, outcome, level, score, quiz_id, quiz_passed,
			 alert_id, cooloff_until, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (transaction_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			outcome = EXCLUDED.outcome,
			quiz_id = EXCLUDED.quiz_id,
			quiz_passed = EXCLUDED.quiz_passed,
			alert_id = EXCLUDED.alert_id,
			cooloff_until = EXCLUDED.cooloff_until,
			updated_at = EXCLUDED.updated_at
	`,
		st.TransactionID, st.Stage, st.Outcome, st.Level, st.Score,
		nullable(st.QuizID), st.QuizPassed, nullable(st.AlertID),
		st.CooloffUntil, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store workflow state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, txID string) (*State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, stage, outcome, level, score, quiz_id, quiz_passed,
		       alert_id, cooloff_until, created_at, updated_at
		FROM workflow_states WHERE transaction_id = $1
	`, txID)

	var st State
	var quizID, alertID sql.NullString
	var cooloff sql.NullTime

	err := row.Scan(
		&st.TransactionID, &st.Stage, &st.Outcome, &st.Level, &st.Score,
		&quizID, &st.QuizPassed, &alertID, &cooloff, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load workflow state: %w", err)
	}

	st.QuizID = quizID.String
	st.AlertID = alertID.String
	if cooloff.Valid {
		t := cooloff.Time
		st.CooloffUntil = &t
	}
	return &st, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
