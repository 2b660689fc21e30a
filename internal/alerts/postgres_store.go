package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PostgresStore persists alerts in PostgreSQL. The decision CAS is a
// conditional UPDATE: only the row still marked 'none' accepts a decision,
// so exactly one of two racing reviewers wins at the database level.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the alerts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id             VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			ts             TIMESTAMPTZ NOT NULL,
			src_account    VARCHAR(64) NOT NULL,
			dst_account    VARCHAR(64) NOT NULL,
			amount         NUMERIC(14,2) NOT NULL,
			currency       VARCHAR(3) NOT NULL,
			channel        VARCHAR(10) NOT NULL,
			level          VARCHAR(10) NOT NULL,
			score          NUMERIC(5,2) NOT NULL,
			reasons        JSONB NOT NULL DEFAULT '[]',
			decision       VARCHAR(10) NOT NULL DEFAULT 'none'
				CHECK (decision IN ('none', 'release', 'cancel')),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			decided_at     TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_created
			ON alerts (created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_alerts_undecided
			ON alerts (created_at DESC) WHERE decision = 'none';
	`)
	return err
}

const alertColumns = `id, transaction_id, ts, src_account, dst_account, amount,
	currency, channel, level, score, reasons, decision, created_at, decided_at`

func (s *PostgresStore) Create(ctx context.Context, a *Alert) error {
	reasons, err := json.Marshal(a.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}
	decision := a.Decision
	if decision == "" {
		decision = DecisionNone
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, transaction_id, ts, src_account, dst_account, amount, currency,
			 channel, level, score, reasons, decision, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		a.ID, a.TransactionID, a.TS, a.SrcAccount, a.DstAccount, a.Amount,
		a.Currency, a.Channel, string(a.Level), a.Score, reasons, string(decision), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Alert, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Level != "" {
		conds = append(conds, "level = "+arg(string(f.Level)))
	}
	if f.DstContains != "" {
		conds = append(conds, "dst_account ILIKE "+arg("%"+f.DstContains+"%"))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= "+arg(f.Since))
	}
	if f.Undecided {
		conds = append(conds, "decision = 'none'")
	}
	if c := f.Cursor; c != nil {
		conds = append(conds, "(created_at, id) < ("+arg(c.CreatedAt)+", "+arg(c.ID)+")")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Decide(ctx context.Context, id string, d Decision) (*Alert, bool, error) {
	if !d.Valid() {
		return nil, false, ErrInvalidDecision
	}

	// CAS: only an undecided row takes the update.
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET decision = $2, decided_at = NOW()
		WHERE id = $1 AND decision = 'none'
	`, id, string(d))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decide alert: %w", err)
	}
	applied, _ := res.RowsAffected()

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return a, applied == 1, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision, COUNT(*), COALESCE(SUM(amount), 0)
		FROM alerts GROUP BY decision
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	st := &Stats{ByDecision: make(map[Decision]int)}
	for rows.Next() {
		var decision string
		var count int
		var amount float64
		if err := rows.Scan(&decision, &count, &amount); err != nil {
			continue
		}
		st.Total += count
		st.ByDecision[Decision(decision)] = count
		switch Decision(decision) {
		case DecisionNone:
			st.AmountHeld += amount
		case DecisionCancel:
			st.AmountPrevented += amount
		}
	}
	return st, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAlert(row scannable) (*Alert, error) {
	var a Alert
	var reasons []byte
	var decidedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.TransactionID, &a.TS, &a.SrcAccount, &a.DstAccount, &a.Amount,
		&a.Currency, &a.Channel, &a.Level, &a.Score, &reasons, &a.Decision,
		&a.CreatedAt, &decidedAt,
	)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(reasons, &a.Reasons)
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return &a, nil
}
