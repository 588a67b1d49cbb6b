// Package runlog records one ledger row per recording session: when a
// run started, when and why it stopped, and which graph version it ran.
// This is bookkeeping metadata, never sample data. With an empty DSN Open
// returns NoOp; a configured Postgres that does not answer a ping makes
// Open return an error.
//
// Grounded on cmd/server/main.go's raw database/sql + blank-imported
// lib/pq pattern: a *sql.DB constructed once at startup and handed down,
// no ORM in between.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// StopReason is why a recording run ended.
type StopReason string

const (
	StopNormal StopReason = "normal"
	StopFatal  StopReason = "fatal"
	StopSignal StopReason = "signal"
)

// Recorder records the lifecycle of a recording session. Implementations
// must tolerate StopRun being called for a run_id that was never
// started (e.g. the ledger came up after the run did) without erroring.
type Recorder interface {
	StartRun(ctx context.Context, runID string, graphVersion int, startedAt time.Time) error
	StopRun(ctx context.Context, runID string, stoppedAt time.Time, reason StopReason) error
	Close() error
}

// Open returns a Postgres-backed Recorder for dsn, or a NoOp Recorder if
// dsn is empty. Callers should always get a non-nil Recorder back so the
// rest of the daemon never has to branch on "is logging configured".
func Open(dsn string) (Recorder, error) {
	if dsn == "" {
		return NoOp{}, nil
	}
	return newPostgresRecorder(dsn)
}

// postgresRecorder persists run lifecycle rows to Postgres via lib/pq.
type postgresRecorder struct {
	db *sql.DB
}

func newPostgresRecorder(dsn string) (*postgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: ping: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: create schema: %w", err)
	}
	return &postgresRecorder{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS daqd_runs (
	run_id        TEXT PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	stopped_at    TIMESTAMPTZ,
	graph_version INTEGER NOT NULL,
	stop_reason   TEXT
)`

func (p *postgresRecorder) StartRun(ctx context.Context, runID string, graphVersion int, startedAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO daqd_runs (run_id, started_at, graph_version) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id) DO UPDATE SET started_at = EXCLUDED.started_at, graph_version = EXCLUDED.graph_version`,
		runID, startedAt, graphVersion,
	)
	if err != nil {
		return fmt.Errorf("runlog: start run %s: %w", runID, err)
	}
	return nil
}

func (p *postgresRecorder) StopRun(ctx context.Context, runID string, stoppedAt time.Time, reason StopReason) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE daqd_runs SET stopped_at = $2, stop_reason = $3 WHERE run_id = $1`,
		runID, stoppedAt, string(reason),
	)
	if err != nil {
		return fmt.Errorf("runlog: stop run %s: %w", runID, err)
	}
	return nil
}

func (p *postgresRecorder) Close() error {
	return p.db.Close()
}

// NoOp is the ledger used when no DSN is configured. Every call
// succeeds and discards its arguments, so the daemon runs standalone on
// a bare SBC with no Postgres available.
type NoOp struct{}

func (NoOp) StartRun(ctx context.Context, runID string, graphVersion int, startedAt time.Time) error {
	return nil
}

func (NoOp) StopRun(ctx context.Context, runID string, stoppedAt time.Time, reason StopReason) error {
	return nil
}

func (NoOp) Close() error { return nil }
