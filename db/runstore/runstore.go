// Package runstore persists finished pipeline runs and their ranked
// candidates.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/db"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// Status of a recorded run.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one finished pipeline run.
type Run struct {
	ID              string
	Request         string
	Query           string
	Hardware        string
	RunCodeAnalysis bool
	Status          string
	Error           string
	Presentation    string
	StartedAt       time.Time
	FinishedAt      time.Time
	Candidates      candidate.List // final ranked order
}

// Summary is a run without its candidates, for listings.
type Summary struct {
	ID         string
	Request    string
	Status     string
	Candidates int
	StartedAt  time.Time
	Duration   time.Duration
}

// Store reads and writes runs.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// New wraps an open, migrated database.
func New(conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: conn, log: logger.OrNop(log)}
}

// Record stores run and its candidates in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.NewInvalidRequestError("run has no id")
	}
	if run.Status == "" {
		run.Status = StatusSucceeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(err, "begin run transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, request, query, hardware, run_code_analysis, status, error, presentation, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Request, run.Query, run.Hardware, run.RunCodeAnalysis, run.Status, run.Error,
		run.Presentation, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return s.wrap(err, "insert run %s", run.ID)
	}

	for i, c := range run.Candidates {
		record, err := json.Marshal(c)
		if err != nil {
			return errors.Wrapf(err, "encode candidate %s", c.FullName)
		}
		var activity, quality any
		if c.Activity != nil {
			activity = c.Activity.Score
		}
		if c.Quality != nil {
			quality = c.Quality.Score
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_candidates (run_id, position, full_name, clone_url, stars, rerank_score, activity_score, quality_score, final_score, record)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, c.FullName, c.CloneURL, c.Stars, nullable(c.RerankScore), activity, quality,
			nullable(c.FinalScore), string(record))
		if err != nil {
			return s.wrap(err, "insert candidate %s", c.FullName)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.wrap(err, "commit run %s", run.ID)
	}
	s.log.Debugw("Run recorded", logger.FieldRunID, run.ID, logger.FieldCount, len(run.Candidates))
	return nil
}

// Recent lists the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.request, r.status, r.started_at, r.finished_at,
		        (SELECT COUNT(*) FROM run_candidates c WHERE c.run_id = r.id)
		 FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, s.wrap(err, "list runs")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var finished time.Time
		if err := rows.Scan(&sum.ID, &sum.Request, &sum.Status, &sum.StartedAt, &finished, &sum.Candidates); err != nil {
			return nil, s.wrap(err, "scan run")
		}
		sum.Duration = finished.Sub(sum.StartedAt)
		out = append(out, sum)
	}
	return out, s.wrap(rows.Err(), "iterate runs")
}

// Candidates returns the ranked candidates of a run.
func (s *Store) Candidates(ctx context.Context, runID string) (candidate.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM run_candidates WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, s.wrap(err, "query candidates of %s", runID)
	}
	defer rows.Close()

	out := candidate.List{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, s.wrap(err, "scan candidate")
		}
		var c candidate.Candidate
		if err := json.Unmarshal([]byte(record), &c); err != nil {
			return nil, errors.Wrapf(err, "decode candidate of %s", runID)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "iterate candidates")
	}
	if len(out) == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, runID).Scan(&exists); err != nil {
			return nil, s.wrap(err, "look up run %s", runID)
		}
		if !exists {
			return nil, errors.NewNotFoundError("run %s", runID)
		}
	}
	return out, nil
}

// wrap annotates err, marking driver closed-database errors so callers can
// test for db.ErrDatabaseClosed.
func (s *Store) wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if db.IsDatabaseClosed(err) {
		err = errors.Mark(err, db.ErrDatabaseClosed)
	}
	return errors.Wrapf(err, format, args...)
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
