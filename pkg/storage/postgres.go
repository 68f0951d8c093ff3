package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/metrics"
)

// Postgres implements Store over a PostgreSQL database
type Postgres struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	now    func() time.Time
	logger zerolog.Logger
}

// Options tunes the connection pool
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgres opens a PostgreSQL-backed store and verifies connectivity
func NewPostgres(ctx context.Context, databaseURL string, opts Options) (*Postgres, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing connection, used by tests with sqlmock
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:    time.Now,
		logger: log.WithComponent("storage"),
	}
}

// Ping verifies database connectivity
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Postgres) Close() error {
	return s.db.Close()
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

// withTx runs fn inside a transaction, rolling back on error or panic
func (s *Postgres) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountJobsByStatus feeds the queue depth gauges
func (s *Postgres) CountJobsByStatus(ctx context.Context) (metrics.JobCounts, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT type, status, COUNT(*) FROM agent_jobs GROUP BY type, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := metrics.JobCounts{}
	for rows.Next() {
		var jobType, status string
		var count int
		if err := rows.Scan(&jobType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job counts: %w", err)
		}
		if counts[jobType] == nil {
			counts[jobType] = map[string]int{}
		}
		counts[jobType][status] = count
	}
	return counts, rows.Err()
}
