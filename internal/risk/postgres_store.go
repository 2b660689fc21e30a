package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id              VARCHAR(64) PRIMARY KEY,
			transaction_id  VARCHAR(64) NOT NULL,
			score           NUMERIC(5,2) NOT NULL CHECK (score >= 0 AND score <= 100),
			level           VARCHAR(10) NOT NULL CHECK (level IN ('low', 'medium', 'high', 'unknown')),
			reasons         JSONB NOT NULL DEFAULT '[]',
			cooloff_minutes INT NOT NULL DEFAULT 0,
			evaluated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_risk_assessments_tx
			ON risk_assessments (transaction_id);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	reasonsJSON, err := json.Marshal(a.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}

	// One assessment per transaction; a replay keeps the original.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, transaction_id, score, level, reasons, cooloff_minutes, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING
	`,
		a.ID, a.TransactionID, a.Score, string(a.Level), reasonsJSON, a.CooloffMinutes, a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByTransaction(ctx context.Context, txID string) (*Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, score, level, reasons, cooloff_minutes, evaluated_at
		FROM risk_assessments
		WHERE transaction_id = $1
	`, txID)

	var a Assessment
	var reasonsJSON []byte
	if err := row.Scan(&a.ID, &a.TransactionID, &a.Score, &a.Level, &reasonsJSON, &a.CooloffMinutes, &a.EvaluatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	_ = json.Unmarshal(reasonsJSON, &a.Reasons)
	return &a, nil
}
