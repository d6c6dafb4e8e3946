// Package store persists analytics snapshots in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dongwandou/CoreNLP/internal/analytics"
	"github.com/dongwandou/CoreNLP/pkg/postgres"
	"github.com/dongwandou/CoreNLP/pkg/resilience"
)

const schema = `CREATE TABLE IF NOT EXISTS request_stats_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store writes snapshots and keeps only the newest Retain rows.
type Store struct {
	db     *postgres.Client
	retain int
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New creates the snapshot table if needed.
func New(ctx context.Context, db *postgres.Client, retain int) (*Store, error) {
	if retain <= 0 {
		retain = 1440
	}
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}
	return &Store{
		db:     db,
		retain: retain,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		logger: slog.Default().With("component", "analytics-store"),
	}, nil
}

// SaveSnapshot inserts stats and prunes rows beyond the retention count in
// one transaction, retrying transient failures.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = resilience.Retry(ctx, "save-snapshot", s.retry, func(ctx context.Context) error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO request_stats_snapshots (data, captured_at) VALUES ($1, $2)`,
				data, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("inserting snapshot: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM request_stats_snapshots WHERE id NOT IN (
					SELECT id FROM request_stats_snapshots ORDER BY captured_at DESC LIMIT $1)`,
				s.retain,
			); err != nil {
				return fmt.Errorf("pruning snapshots: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.logger.Debug("analytics snapshot saved", "total_requests", stats.TotalRequests)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil if there is none.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM request_stats_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns the newest limit snapshots, skipping corrupt rows.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM request_stats_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// Run saves a snapshot of agg every interval, plus a final one when ctx
// ends. It returns after the final save.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshot started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.SaveSnapshot(finalCtx, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
