package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

const runColumns = `id, source_filepath, source_nodepath, condition, result_name, status,
	rows_scanned, rows_matched, started_at, completed_at, error`

// CreateRun records a query that is about to run. The run takes the
// descriptor's ID so completions can be matched to it.
func (s *SQLiteStore) CreateRun(d core.QueryDescriptor) (*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	id := d.ID
	if id == "" {
		id = generateID()
	}
	run := &core.QueryRun{
		ID:         id,
		Source:     d.Source,
		Condition:  d.Condition,
		ResultName: d.ResultName,
		Status:     core.QueryStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO query_runs (id, source_filepath, source_nodepath, condition, result_name, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source.Filepath, run.Source.Nodepath, run.Condition, run.ResultName, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun stores the outcome of a run.
func (s *SQLiteStore) CompleteRun(id string, c core.Completion) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errMsg sql.NullString
	if c.Err != nil {
		errMsg = sql.NullString{String: c.Err.Error(), Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE query_runs
		 SET status = ?, rows_scanned = ?, rows_matched = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		c.Status(), c.Scanned, c.Matched, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM query_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, err
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM query_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.QueryRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetLatestRun returns the most recently started run, or nil when the
// history is empty.
func (s *SQLiteStore) GetLatestRun() (*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRow(
		`SELECT ` + runColumns + ` FROM query_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// GetLatestRunForTable returns the most recent run against ref, or nil.
func (s *SQLiteStore) GetLatestRunForTable(ref core.TableRef) (*core.QueryRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM query_runs
		 WHERE source_filepath = ? AND source_nodepath = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		ref.Filepath, ref.Nodepath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.QueryRun, error) {
	run := &core.QueryRun{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	var status string

	err := row.Scan(&run.ID, &run.Source.Filepath, &run.Source.Nodepath, &run.Condition,
		&run.ResultName, &status, &run.RowsScanned, &run.RowsMatched,
		&run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = core.QueryStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}
