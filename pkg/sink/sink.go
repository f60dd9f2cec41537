/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sink ships system snapshots to an external time-series store on a
// best-effort basis. A store outage degrades only historical queries, never
// live monitoring.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/pulse/pkg/logger"
	"github.com/carverauto/pulse/pkg/models"
)

const defaultQueueSize = 256

// Sink receives system snapshots asynchronously.
type Sink interface {
	WriteSnapshot(snapshot models.SystemMetrics)
	Close(ctx context.Context) error
}

// NopSink discards everything. Used when no store is configured.
type NopSink struct{}

func (NopSink) WriteSnapshot(models.SystemMetrics) {}

func (NopSink) Close(context.Context) error { return nil }

// execer is the slice of the pgx pool API the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGSink writes snapshots to a Postgres/TimescaleDB table through a bounded
// queue. A full queue drops the snapshot rather than backpressuring the
// aggregation tick.
type PGSink struct {
	db     execer
	pool   *pgxpool.Pool
	queue  chan models.SystemMetrics
	logger logger.Logger

	mu      sync.Mutex
	dropped uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS pulse_snapshots (
			timestamp         TIMESTAMPTZ NOT NULL,
			overall_status    TEXT NOT NULL,
			avg_response_time DOUBLE PRECISION NOT NULL,
			error_rate        DOUBLE PRECISION NOT NULL,
			active_alerts     INTEGER NOT NULL,
			trust_score       DOUBLE PRECISION NOT NULL
		)`

	insertSnapshotSQL = `
		INSERT INTO pulse_snapshots
			(timestamp, overall_status, avg_response_time, error_rate, active_alerts, trust_score)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// NewPGSink connects to the store named by config and starts the writer.
func NewPGSink(ctx context.Context, config models.SinkConfig, log logger.Logger) (*PGSink, error) {
	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}

	s := newPGSink(pool, config.QueueSize, log)
	s.pool = pool

	return s, nil
}

func newPGSink(db execer, queueSize int, log logger.Logger) *PGSink {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	s := &PGSink{
		db:     db,
		queue:  make(chan models.SystemMetrics, queueSize),
		logger: log,
		done:   make(chan struct{}),
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s
}

// WriteSnapshot enqueues one snapshot. Never blocks.
func (s *PGSink) WriteSnapshot(snapshot models.SystemMetrics) {
	select {
	case s.queue <- snapshot:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()

		s.logger.Warn().
			Uint64("dropped_total", dropped).
			Msg("Sink queue full, dropping snapshot")
	}
}

func (s *PGSink) run() {
	for {
		select {
		case <-s.done:
			// drain what is already queued before exiting
			for {
				select {
				case snapshot := <-s.queue:
					s.write(snapshot)
				default:
					return
				}
			}
		case snapshot := <-s.queue:
			s.write(snapshot)
		}
	}
}

func (s *PGSink) write(snapshot models.SystemMetrics) {
	_, err := s.db.Exec(context.Background(), insertSnapshotSQL,
		snapshot.Timestamp,
		string(snapshot.OverallStatus),
		snapshot.AvgResponseTime,
		snapshot.ErrorRate,
		snapshot.ActiveAlerts,
		snapshot.TrustScore,
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write snapshot to store")
	}
}

func (s *PGSink) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	if s.pool != nil {
		s.pool.Close()
	}

	return nil
}

// Dropped returns the count of snapshots discarded due to a full queue.
func (s *PGSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}
