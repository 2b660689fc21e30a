package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists verification sessions in PostgreSQL. The
// transaction fields are columns; accumulated artifacts are JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sessions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			transaction_id  VARCHAR(64) PRIMARY KEY,
			ts              TIMESTAMPTZ NOT NULL,
			src_account     VARCHAR(64) NOT NULL,
			dst_account     VARCHAR(64) NOT NULL,
			amount          NUMERIC(14,2) NOT NULL,
			currency        VARCHAR(3) NOT NULL,
			channel         VARCHAR(10) NOT NULL,
			first_to_payee  BOOLEAN NOT NULL DEFAULT FALSE,
			description     TEXT,
			device_fp       VARCHAR(128),
			assessment      JSONB,
			explanation     JSONB,
			classification  JSONB,
			quiz_id         VARCHAR(64),
			alert_id        VARCHAR(64),
			decided         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_idle
			ON sessions (last_active) WHERE NOT decided;
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	assessment, explanation, classification := marshalArtifacts(sess)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(transaction_id, ts, src_account, dst_account, amount, currency, channel,
			 first_to_payee, description, device_fp, assessment, explanation,
			 classification, quiz_id, alert_id, decided, created_at, last_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		sess.Transaction.ID, sess.Transaction.TS, sess.Transaction.SrcAccount,
		sess.Transaction.DstAccount, sess.Transaction.Amount, sess.Transaction.Currency,
		sess.Transaction.Channel, sess.Transaction.FirstToPayee, sess.Transaction.Description,
		sess.Transaction.DeviceFP, assessment, explanation, classification,
		nullable(sess.QuizID), nullable(sess.AlertID), sess.Decided, sess.CreatedAt, sess.LastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, txID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, ts, src_account, dst_account, amount, currency, channel,
		       first_to_payee, description, device_fp, assessment, explanation,
		       classification, quiz_id, alert_id, decided, created_at, last_active
		FROM sessions WHERE transaction_id = $1
	`, txID)

	var sess Session
	var description, deviceFP, quizID, alertID sql.NullString
	var assessment, explanation, classification []byte

	err := row.Scan(
		&sess.Transaction.ID, &sess.Transaction.TS, &sess.Transaction.SrcAccount,
		&sess.Transaction.DstAccount, &sess.Transaction.Amount, &sess.Transaction.Currency,
		&sess.Transaction.Channel, &sess.Transaction.FirstToPayee, &description, &deviceFP,
		&assessment, &explanation, &classification, &quizID, &alertID,
		&sess.Decided, &sess.CreatedAt, &sess.LastActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.Transaction.Description = description.String
	sess.Transaction.DeviceFP = deviceFP.String
	sess.QuizID = quizID.String
	sess.AlertID = alertID.String
	if len(assessment) > 0 {
		_ = json.Unmarshal(assessment, &sess.Assessment)
	}
	if len(explanation) > 0 {
		_ = json.Unmarshal(explanation, &sess.Explanation)
	}
	if len(classification) > 0 {
		_ = json.Unmarshal(classification, &sess.Classification)
	}
	return &sess, nil
}

func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	assessment, explanation, classification := marshalArtifacts(sess)

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			assessment = $2, explanation = $3, classification = $4,
			quiz_id = $5, alert_id = $6, decided = $7, last_active = $8
		WHERE transaction_id = $1
	`,
		sess.Transaction.ID, assessment, explanation, classification,
		nullable(sess.QuizID), nullable(sess.AlertID), sess.Decided, sess.LastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE NOT decided AND last_active < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func marshalArtifacts(sess *Session) (assessment, explanation, classification []byte) {
	if sess.Assessment != nil {
		assessment, _ = json.Marshal(sess.Assessment)
	}
	if sess.Explanation != nil {
		explanation, _ = json.Marshal(sess.Explanation)
	}
	if sess.Classification != nil {
		classification, _ = json.Marshal(sess.Classification)
	}
	return
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
