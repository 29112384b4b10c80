// Package state keeps the explicit collection state of every year:
// NOT_STARTED, IN_PROGRESS with k of m regions done, or COMPLETE.
//
// The year partition file stays the commit point. Reconcile brings the
// record in line with the filesystem at the start of every run.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/chrono"

	"github.com/google/uuid"
)

//go:embed schema.sql
var Schema string

type Status string

const (
	NotStarted Status = "NOT_STARTED"
	InProgress Status = "IN_PROGRESS"
	Complete   Status = "COMPLETE"
)

type YearState struct {
	Year             int
	Status           Status
	CompletedRegions int
	TotalRegions     int
	Rows             int
	UpdatedAt        time.Time
}

type Store struct {
	db   *sql.DB
	time chrono.TimeAPI
}

func NewStore(db *sql.DB, time chrono.TimeAPI) Store {
	assert.NotNil(db)
	assert.NotNil(time)
	return Store{db: db, time: time}
}

func (s Store) now() int64 {
	return s.time.Now().Unix()
}

func scanYear(row interface{ Scan(...any) error }) (YearState, error) {
	var (
		st      YearState
		status  string
		updated int64
	)
	err := row.Scan(&st.Year, &status, &st.CompletedRegions, &st.TotalRegions, &st.Rows, &updated)
	if err != nil {
		return YearState{}, err
	}
	st.Status = Status(status)
	st.UpdatedAt = time.Unix(updated, 0).In(chrono.Belgrade())
	return st, nil
}

const selectYear = `SELECT year, status, completed_regions, total_regions, row_count, updated_at FROM year_state`

// Get returns the recorded state of year, a year that was never recorded is NOT_STARTED.
func (s Store) Get(ctx context.Context, year int) (YearState, error) {
	st, err := scanYear(s.db.QueryRowContext(ctx, selectYear+` WHERE year = ?`, year))
	if errors.Is(err, sql.ErrNoRows) {
		return YearState{Year: year, Status: NotStarted}, nil
	}
	if err != nil {
		return YearState{}, fmt.Errorf("get year %d: %w", year, err)
	}
	return st, nil
}

// All returns every recorded year in ascending order.
func (s Store) All(ctx context.Context) ([]YearState, error) {
	rows, err := s.db.QueryContext(ctx, selectYear+` ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("list years: %w", err)
	}
	defer rows.Close()

	var out []YearState
	for rows.Next() {
		st, err := scanYear(rows)
		if err != nil {
			return nil, fmt.Errorf("list years: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s Store) upsertYear(ctx context.Context, tx *sql.Tx, st YearState) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO year_state (year, status, completed_regions, total_regions, row_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (year) DO UPDATE SET
			status = excluded.status,
			completed_regions = excluded.completed_regions,
			total_regions = excluded.total_regions,
			row_count = excluded.row_count,
			updated_at = excluded.updated_at`,
		st.Year, string(st.Status), st.CompletedRegions, st.TotalRegions, st.Rows, s.now(),
	)
	return err
}

func (s Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Reconcile aligns the record of year with whether its partition file is
// committed on disk and returns the resulting state.
func (s Store) Reconcile(ctx context.Context, year int, committed bool) (YearState, error) {
	current, err := s.Get(ctx, year)
	if err != nil {
		return YearState{}, err
	}

	switch {
	case committed && current.Status != Complete:
		current.Status = Complete
		current.CompletedRegions = current.TotalRegions
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			err := s.upsertYear(ctx, tx, current)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `DELETE FROM region_checkpoint WHERE year = ?`, year)
			return err
		})
	case !committed && current.Status == Complete:
		err = s.ResetYear(ctx, year)
		current = YearState{Year: year, Status: NotStarted}
	}
	if err != nil {
		return YearState{}, fmt.Errorf("reconcile year %d: %w", year, err)
	}
	return current, nil
}

// BeginYear marks year IN_PROGRESS over totalRegions regions, keeping the
// regions already recorded for it.
func (s Store) BeginYear(ctx context.Context, year, totalRegions int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var completed int
		err := tx.QueryRowContext(
			ctx,
			`SELECT count(*) FROM region_checkpoint WHERE year = ?`,
			year,
		).Scan(&completed)
		if err != nil {
			return err
		}
		return s.upsertYear(ctx, tx, YearState{
			Year:             year,
			Status:           InProgress,
			CompletedRegions: completed,
			TotalRegions:     totalRegions,
		})
	})
	if err != nil {
		return fmt.Errorf("begin year %d: %w", year, err)
	}
	return nil
}

// RecordRegion records that the checkpoint of (year, region) holds rows rows
// and returns how many regions of year are now done.
func (s Store) RecordRegion(ctx context.Context, year int, region string, rows int) (int, error) {
	var completed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO region_checkpoint (year, region, row_count, completed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (year, region) DO UPDATE SET
				row_count = excluded.row_count,
				completed_at = excluded.completed_at`,
			year, region, rows, s.now(),
		)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(
			ctx,
			`SELECT count(*), coalesce(sum(row_count), 0) FROM region_checkpoint WHERE year = ?`,
			year,
		).Scan(&completed, &rows)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(
			ctx,
			`UPDATE year_state SET completed_regions = ?, row_count = ?, updated_at = ? WHERE year = ?`,
			completed, rows, s.now(), year,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("record region %d/%s: %w", year, region, err)
	}
	return completed, nil
}

// HasRegion reports whether (year, region) was recorded as done.
func (s Store) HasRegion(ctx context.Context, year int, region string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT count(*) FROM region_checkpoint WHERE year = ? AND region = ?`,
		year, region,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has region %d/%s: %w", year, region, err)
	}
	return n > 0, nil
}

// CompleteYear marks year COMPLETE with rows deduplicated rows and forgets
// its region records.
func (s Store) CompleteYear(ctx context.Context, year, totalRegions, rows int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := s.upsertYear(ctx, tx, YearState{
			Year:             year,
			Status:           Complete,
			CompletedRegions: totalRegions,
			TotalRegions:     totalRegions,
			Rows:             rows,
		})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM region_checkpoint WHERE year = ?`, year)
		return err
	})
	if err != nil {
		return fmt.Errorf("complete year %d: %w", year, err)
	}
	return nil
}

// ResetYear forgets everything recorded about year.
func (s Store) ResetYear(ctx context.Context, year int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM region_checkpoint WHERE year = ?`, year)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM year_state WHERE year = ?`, year)
		return err
	})
}

// StartRun logs the start of a collection run of the given kind and returns its id.
func (s Store) StartRun(ctx context.Context, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_log (id, kind, started_at) VALUES (?, ?, ?)`,
		id, kind, s.now(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

func (s Store) FinishRun(ctx context.Context, id string, yearsOk, yearsFailed int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE run_log SET finished_at = ?, years_ok = ?, years_failed = ? WHERE id = ?`,
		s.now(), yearsOk, yearsFailed, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

type Run struct {
	ID          string
	Kind        string
	StartedAt   time.Time
	FinishedAt  time.Time
	YearsOk     int
	YearsFailed int
}

// LastRun returns the most recently started run, ok is false if there is none.
func (s Store) LastRun(ctx context.Context) (run Run, ok bool, err error) {
	var (
		started  int64
		finished sql.NullInt64
		yearsOk  sql.NullInt64
		failed   sql.NullInt64
	)
	err = s.db.QueryRowContext(
		ctx,
		`SELECT id, kind, started_at, finished_at, years_ok, years_failed
		FROM run_log ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	).Scan(&run.ID, &run.Kind, &started, &finished, &yearsOk, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("last run: %w", err)
	}
	run.StartedAt = time.Unix(started, 0).In(chrono.Belgrade())
	if finished.Valid {
		run.FinishedAt = time.Unix(finished.Int64, 0).In(chrono.Belgrade())
	}
	run.YearsOk = int(yearsOk.Int64)
	run.YearsFailed = int(failed.Int64)
	return run, true, nil
}
