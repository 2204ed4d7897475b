package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/money"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore keeps attempts in a PostgreSQL table.
type PostgresStore struct {
	db      *sql.DB
	table   string
	metrics *metrics.Metrics
}

// NewPostgresStoreWithDB creates the table if missing. The caller owns db.
func NewPostgresStoreWithDB(db *sql.DB, table string, m *metrics.Metrics) (*PostgresStore, error) {
	if table == "" {
		table = "checkout_attempts"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("storage: invalid table name %q", table)
	}
	s := &PostgresStore{db: db, table: table, metrics: m}
	if err := s.createTable(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			order_id BIGINT NOT NULL DEFAULT 0,
			order_number TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			coupon_code TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_session_idx ON %[1]s (session_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS %[1]s_order_idx ON %[1]s (order_id);
	`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) SaveAttempt(ctx context.Context, a Attempt) error {
	if err := validateAttempt(&a); err != nil {
		return err
	}
	defer metrics.MeasureDBQuery(s.metrics, "save_attempt", "postgres")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, order_id, order_number, payment_method, provider, state,
			amount, currency, coupon_code, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			order_number = EXCLUDED.order_number,
			provider = EXCLUDED.provider,
			state = EXCLUDED.state,
			amount = EXCLUDED.amount,
			coupon_code = EXCLUDED.coupon_code,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at
	`, s.table)
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.SessionID, a.OrderID, a.OrderNumber, a.PaymentMethod, a.Provider, a.State,
		int64(a.Amount), a.Currency, a.CouponCode, a.FailureReason, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save attempt %s: %w", a.ID, err)
	}
	return nil
}

const attemptColumns = `id, session_id, order_id, order_number, payment_method, provider, state,
	amount, currency, coupon_code, failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var amount int64
	err := row.Scan(&a.ID, &a.SessionID, &a.OrderID, &a.OrderNumber, &a.PaymentMethod, &a.Provider,
		&a.State, &amount, &a.Currency, &a.CouponCode, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt)
	a.Amount = money.Money(amount)
	return a, err
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_attempt", "postgres")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, attemptColumns, s.table)
	a, err := scanAttempt(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, sessionID string, limit int) ([]Attempt, error) {
	defer metrics.MeasureDBQuery(s.metrics, "list_attempts", "postgres")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE session_id = $1 ORDER BY created_at DESC, id DESC`, attemptColumns, s.table)
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneAttempts deletes finished attempts last updated before cutoff. Attempts
// still waiting on an order or a payment are kept. With dryRun the matching rows
// are only counted.
func (s *PostgresStore) PruneAttempts(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
	defer metrics.MeasureDBQuery(s.metrics, "prune_attempts", "postgres")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	where := `updated_at < $1 AND state NOT IN ('order_created', 'payment_pending')`
	if dryRun {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, where)
		if err := s.db.QueryRowContext(ctx, query, cutoff).Scan(&n); err != nil {
			return 0, fmt.Errorf("count prunable attempts: %w", err)
		}
		return n, nil
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, where), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the shared pool is closed by its owner.
func (s *PostgresStore) Close() error { return nil }
