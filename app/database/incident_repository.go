package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lysyi3m/hasici-feed/app/incident"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	placeStatsLimit  = 200
)

var _ IncidentRepository = (*incidentRepository)(nil)

type incidentRepository struct {
	db *DB
}

func NewIncidentRepository(db *DB) IncidentRepository {
	return &incidentRepository{db: db}
}

const incidentColumns = `id, title, link, published_at, category, subtype, place, district,
	status, road, distance_km, end_time_raw, ended_at, duration_minutes, raw_description, ingested_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *incidentRepository) GetIncident(ctx context.Context, id string) (*incident.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)

	record, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return record, nil
}

// UpsertIncident writes every column of record and reports whether the row
// was new. A places row is ensured for the incident's (place, district) in the
// same transaction.
func (r *incidentRepository) UpsertIncident(ctx context.Context, record *incident.Record) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM incidents WHERE id = ?`, record.ID).Scan(&exists)
	inserted := errors.Is(err, sql.ErrNoRows)
	if err != nil && !inserted {
		return false, fmt.Errorf("failed to check incident: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			published_at = excluded.published_at,
			category = excluded.category,
			subtype = excluded.subtype,
			place = excluded.place,
			district = excluded.district,
			status = excluded.status,
			road = excluded.road,
			distance_km = excluded.distance_km,
			end_time_raw = excluded.end_time_raw,
			ended_at = excluded.ended_at,
			duration_minutes = excluded.duration_minutes,
			raw_description = excluded.raw_description,
			ingested_at = excluded.ingested_at
	`, record.ID, record.Title, record.Link, formatTime(record.PublishedAt),
		ptrValue(record.Category), ptrValue(record.Subtype), ptrValue(record.Place), ptrValue(record.District),
		ptrValue(record.Status), ptrValue(record.Road), ptrValue(record.DistanceKm), ptrValue(record.EndTimeRaw),
		formatTimePtr(record.EndedAt), ptrValue(record.DurationMinutes), record.RawDescription,
		formatTime(record.IngestedAt))
	if err != nil {
		return false, fmt.Errorf("failed to upsert incident: %w", err)
	}

	if record.Place != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO places (place, district, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(place, district) DO NOTHING
		`, *record.Place, derefOr(record.District, ""), formatTime(record.IngestedAt))
		if err != nil {
			return false, fmt.Errorf("failed to ensure place: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit incident: %w", err)
	}

	return inserted, nil
}

func (r *incidentRepository) ListIncidents(ctx context.Context, filter IncidentFilter) ([]incident.Record, error) {
	where, args := filter.where("")
	args = append(args, filter.limit())

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents`+where+`
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var records []incident.Record
	for rows.Next() {
		record, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident rows: %w", err)
	}

	return records, nil
}

func (r *incidentRepository) GetIncidentCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return count, nil
}

func (r *incidentRepository) PlaceStats(ctx context.Context, filter IncidentFilter) ([]PlaceStat, error) {
	where, args := filter.where("")
	args = append([]any{UnknownLabel, UnknownLabel}, args...)
	args = append(args, placeStatsLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(place, ?) AS p, COALESCE(district, ?) AS d, COUNT(*) AS cnt
		FROM incidents`+where+`
		GROUP BY p, d
		ORDER BY cnt DESC, p ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query place stats: %w", err)
	}
	defer rows.Close()

	var stats []PlaceStat
	for rows.Next() {
		var s PlaceStat
		if err := rows.Scan(&s.Place, &s.District, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan place stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *incidentRepository) CategoryStats(ctx context.Context, filter IncidentFilter) ([]CountStat, error) {
	return r.countBy(ctx, "category", filter)
}

func (r *incidentRepository) DistrictStats(ctx context.Context, filter IncidentFilter) ([]CountStat, error) {
	return r.countBy(ctx, "district", filter)
}

// countBy groups incidents by one of a fixed set of columns.
func (r *incidentRepository) countBy(ctx context.Context, column string, filter IncidentFilter) ([]CountStat, error) {
	switch column {
	case "category", "district":
	default:
		return nil, fmt.Errorf("unsupported stats column %q", column)
	}

	where, args := filter.where("")
	args = append([]any{UnknownLabel}, args...)

	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(`+column+`, ?) AS name, COUNT(*) AS cnt
		FROM incidents`+where+`
		GROUP BY name
		ORDER BY cnt DESC, name ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s stats: %w", column, err)
	}
	defer rows.Close()

	var stats []CountStat
	for rows.Next() {
		var s CountStat
		if err := rows.Scan(&s.Name, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s stat: %w", column, err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanIncident(row rowScanner) (*incident.Record, error) {
	var (
		record                                     incident.Record
		publishedAt, ingestedAt                    string
		category, subtype, place, district, status sql.NullString
		road, endTimeRaw, endedAt                  sql.NullString
		distanceKm                                 sql.NullFloat64
		durationMinutes                            sql.NullInt64
	)

	err := row.Scan(
		&record.ID, &record.Title, &record.Link, &publishedAt,
		&category, &subtype, &place, &district, &status, &road,
		&distanceKm, &endTimeRaw, &endedAt, &durationMinutes,
		&record.RawDescription, &ingestedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.PublishedAt, err = parseTime(publishedAt); err != nil {
		return nil, err
	}
	if record.IngestedAt, err = parseTime(ingestedAt); err != nil {
		return nil, err
	}
	if record.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}

	record.Category = nullString(category)
	record.Subtype = nullString(subtype)
	record.Place = nullString(place)
	record.District = nullString(district)
	record.Status = nullString(status)
	record.Road = nullString(road)
	record.DistanceKm = nullFloat(distanceKm)
	record.EndTimeRaw = nullString(endTimeRaw)
	record.DurationMinutes = nullInt(durationMinutes)

	return &record, nil
}

// where renders the filter as a parameterized WHERE clause. alias prefixes
// column names when non-empty.
func (f IncidentFilter) where(alias string) (string, []any) {
	conds, args := f.conditions(alias)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f IncidentFilter) conditions(alias string) ([]string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	var conds []string
	var args []any

	if f.From != nil {
		conds = append(conds, col("published_at")+" >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, col("published_at")+" < ?")
		args = append(args, formatTime(*f.To))
	}
	if f.Place != "" {
		conds = append(conds, col("place")+" = ?")
		args = append(args, f.Place)
	}
	if f.District != "" {
		conds = append(conds, col("district")+" = ?")
		args = append(args, f.District)
	}
	if f.Category != "" {
		if f.CategoryPrefix {
			conds = append(conds, "substr("+col("category")+", 1, length(?)) = ?")
			args = append(args, f.Category, f.Category)
		} else {
			conds = append(conds, col("category")+" = ?")
			args = append(args, f.Category)
		}
	}

	return conds, args
}

func (f IncidentFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

func ptrValue[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
