package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists quiz sessions in PostgreSQL. One row per
// transaction; re-issuing a quiz overwrites the row, matching the
// only-the-latest-session-is-authoritative rule.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed quiz session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the quiz_sessions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quiz_sessions (
			transaction_id VARCHAR(64) PRIMARY KEY,
			id             VARCHAR(64) NOT NULL,
			state          VARCHAR(16) NOT NULL,
			questions      JSONB NOT NULL DEFAULT '[]',
			rubric         JSONB NOT NULL DEFAULT '[]',
			answers        JSONB NOT NULL DEFAULT '[]',
			score          INT NOT NULL DEFAULT 0,
			decision       VARCHAR(8),
			reasons        JSONB NOT NULL DEFAULT '[]',
			issued_at      TIMESTAMPTZ NOT NULL,
			scored_at      TIMESTAMPTZ
		);
	`)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, sess *Session) error {
	questions, _ := json.Marshal(sess.Questions)
	rubric, _ := json.Marshal(sess.Rubric)
	answers, _ := json.Marshal(sess.Answers)
	reasons, _ := json.Marshal(sess.Reasons)

	var decision *string
	if sess.Decision != "" {
		d := string(sess.Decision)
		decision = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_sessions
			(transaction_id, id, state, questions, rubric, answers, score, decision, reasons, issued_at, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO UPDATE SET
			id = EXCLUDED.id,
			state = EXCLUDED.state,
			questions = EXCLUDED.questions,
			rubric = EXCLUDED.rubric,
			answers = EXCLUDED.answers,
			score = EXCLUDED.score,
			decision = EXCLUDED.decision,
			reasons = EXCLUDED.reasons,
			issued_at = EXCLUDED.issued_at,
			scored_at = EXCLUDED.scored_at
	`,
		sess.TransactionID, sess.ID, string(sess.State), questions, rubric, answers,
		sess.Score, decision, reasons, sess.IssuedAt, sess.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store quiz session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, txID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, id, state, questions, rubric, answers, score, decision, reasons, issued_at, scored_at
		FROM quiz_sessions
		WHERE transaction_id = $1
	`, txID)

	var sess Session
	var questions, rubric, answers, reasons []byte
	var decision *string
	if err := row.Scan(&sess.TransactionID, &sess.ID, &sess.State, &questions, &rubric,
		&answers, &sess.Score, &decision, &reasons, &sess.IssuedAt, &sess.ScoredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quiz session: %w", err)
	}
	_ = json.Unmarshal(questions, &sess.Questions)
	_ = json.Unmarshal(rubric, &sess.Rubric)
	_ = json.Unmarshal(answers, &sess.Answers)
	_ = json.Unmarshal(reasons, &sess.Reasons)
	if decision != nil {
		sess.Decision = Decision(*decision)
	}
	return &sess, nil
}
