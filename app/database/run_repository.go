package database

import (
	"context"
	"fmt"
)

var _ RunRepository = (*runRepository)(nil)

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) CreateRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (
			id, source, source_used, status, error,
			items_total, inserted, updated, skipped, geocoded,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Source, run.SourceUsed, string(run.Status), run.Error,
		run.ItemsTotal, run.Inserted, run.Updated, run.Skipped, run.Geocoded,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

func (r *runRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, source_used, status, error,
		       items_total, inserted, updated, skipped, geocoded,
		       started_at, finished_at
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                   Run
			status                string
			startedAt, finishedAt string
		)
		err := rows.Scan(
			&run.ID, &run.Source, &run.SourceUsed, &status, &run.Error,
			&run.ItemsTotal, &run.Inserted, &run.Updated, &run.Skipped, &run.Geocoded,
			&startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		run.Status = RunStatus(status)
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}
