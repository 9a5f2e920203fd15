package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parking-lot/internal/parking"
)

const schema = `
CREATE TABLE IF NOT EXISTS parking_history (
	id               UUID PRIMARY KEY,
	car_id           TEXT NOT NULL,
	enter_time       TIMESTAMPTZ NOT NULL,
	exit_time        TIMESTAMPTZ NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL,
	fee              DOUBLE PRECISION NOT NULL,
	billing_mode     TEXT NOT NULL,
	side             TEXT NOT NULL,
	position         TEXT NOT NULL,
	move_cost        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS parking_history_exit_time_idx ON parking_history (exit_time DESC);
`

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	q    Querier
}

func spanName(dbName string) func(string) string {
	return func(stmt string) string {
		fields := strings.Fields(stmt)
		if len(fields) == 0 {
			return dbName
		}
		return dbName + " " + strings.ToUpper(fields[0])
	}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	dbName := "parking"
	if config.ConnConfig.Database != "" {
		dbName = config.ConnConfig.Database
	}
	config.ConnConfig.Tracer = otelpgx.NewTracer(
		otelpgx.WithTrimSQLInSpanName(),
		otelpgx.WithDisableQuerySpanNamePrefix(),
		otelpgx.WithSpanNameFunc(spanName(dbName)),
	)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// OpenPostgres connects with exponential backoff, since the database often
// starts alongside the service, then creates the history table.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := NewPool(ctx, databaseURL)
		if err != nil {
			if _, parseErr := pgxpool.ParseConfig(databaseURL); parseErr != nil {
				return nil, backoff.Permanent(parseErr)
			}
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}

	return &PostgresStore{pool: pool, q: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, e parking.HistoryEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO parking_history (id, car_id, enter_time, exit_time, duration_seconds,
			fee, billing_mode, side, position, move_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.VehicleID, e.EnterTime, e.ExitTime, e.DurationSeconds,
		e.Fee, string(e.BillingMode), string(e.Side), e.Position, e.MoveCost,
	)
	if err != nil {
		return fmt.Errorf("insert history %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]parking.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.q.Query(ctx, `
		SELECT id::text, car_id, enter_time, exit_time, duration_seconds,
			fee, billing_mode, side, position, move_cost
		FROM parking_history
		ORDER BY exit_time DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []parking.HistoryEntry
	for rows.Next() {
		var (
			e          parking.HistoryEntry
			mode, side string
		)
		if err := rows.Scan(&e.ID, &e.VehicleID, &e.EnterTime, &e.ExitTime, &e.DurationSeconds,
			&e.Fee, &mode, &side, &e.Position, &e.MoveCost); err != nil {
			return nil, err
		}
		e.BillingMode = parking.BillingMode(mode)
		e.Side = parking.Side(side)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
