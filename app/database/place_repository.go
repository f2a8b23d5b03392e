package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const mapPlacesLimit = 2000

// MapKinds are the category prefixes broken out per place on the map.
var MapKinds = []string{"požár", "dopravní nehoda", "technická pomoc", "planý poplach"}

var _ PlaceRepository = (*placeRepository)(nil)

type placeRepository struct {
	db *DB
}

func NewPlaceRepository(db *DB) PlaceRepository {
	return &placeRepository{db: db}
}

func (r *placeRepository) GetPlace(ctx context.Context, key PlaceKey) (*PlaceCoordinate, error) {
	var (
		coord       PlaceCoordinate
		lat, lon    sql.NullFloat64
		provider    sql.NullString
		attemptedAt sql.NullString
		updatedAt   string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT place, district, lat, lon, provider, confidence, attempted_at, updated_at
		FROM places
		WHERE place = ? AND district = ?
	`, key.Place, key.District).Scan(
		&coord.Place, &coord.District, &lat, &lon, &provider, &coord.Confidence, &attemptedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get place: %w", err)
	}

	coord.Lat = nullFloat(lat)
	coord.Lon = nullFloat(lon)
	coord.Provider = provider.String
	if coord.AttemptedAt, err = parseNullTime(attemptedAt); err != nil {
		return nil, err
	}
	if coord.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &coord, nil
}

// ListMissingCoordinates returns up to limit pairs without coordinates, the
// ones never attempted first and then the least recently attempted.
func (r *placeRepository) ListMissingCoordinates(ctx context.Context, limit int) ([]PlaceKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT place, district
		FROM places
		WHERE lat IS NULL OR lon IS NULL
		ORDER BY attempted_at IS NOT NULL, attempted_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list places missing coordinates: %w", err)
	}
	defer rows.Close()

	var keys []PlaceKey
	for rows.Next() {
		var key PlaceKey
		if err := rows.Scan(&key.Place, &key.District); err != nil {
			return nil, fmt.Errorf("failed to scan place row: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating place rows: %w", err)
	}

	return keys, nil
}

// UpsertCoordinate stores coord unless the row already holds coordinates from
// a source with higher confidence. It reports whether the row was written.
func (r *placeRepository) UpsertCoordinate(ctx context.Context, coord PlaceCoordinate) (bool, error) {
	if !coord.HasCoordinates() {
		return false, fmt.Errorf("coordinate for %q has no lat/lon", coord.Place)
	}

	updatedAt := coord.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO places (place, district, lat, lon, provider, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place, district) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			provider = excluded.provider,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
		WHERE places.lat IS NULL
		   OR places.lon IS NULL
		   OR excluded.confidence >= places.confidence
	`, coord.Place, coord.District, *coord.Lat, *coord.Lon, coord.Provider, coord.Confidence, formatTime(updatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to upsert coordinate: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *placeRepository) MarkAttempted(ctx context.Context, key PlaceKey, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE places SET attempted_at = ? WHERE place = ? AND district = ?
	`, formatTime(at), key.Place, key.District)
	if err != nil {
		return fmt.Errorf("failed to mark geocode attempt: %w", err)
	}
	return nil
}

// MapPlaces returns geocoded places with their incident counts, broken out by
// MapKinds.
func (r *placeRepository) MapPlaces(ctx context.Context, filter IncidentFilter) ([]MapPlace, error) {
	var sums []string
	var args []any
	for _, kind := range MapKinds {
		sums = append(sums, "SUM(CASE WHEN substr(i.category, 1, length(?)) = ? THEN 1 ELSE 0 END)")
		args = append(args, kind, kind)
	}

	conds, filterArgs := filter.conditions("i")
	conds = append([]string{"p.lat IS NOT NULL", "p.lon IS NOT NULL"}, conds...)
	args = append(args, filterArgs...)
	args = append(args, mapPlacesLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.place, p.district, p.lat, p.lon, COUNT(i.id) AS cnt, `+strings.Join(sums, ", ")+`
		FROM places p
		JOIN incidents i ON i.place = p.place AND COALESCE(i.district, '') = p.district
		WHERE `+strings.Join(conds, " AND ")+`
		GROUP BY p.id
		ORDER BY cnt DESC, p.place ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query map places: %w", err)
	}
	defer rows.Close()

	var places []MapPlace
	for rows.Next() {
		var mp MapPlace
		counts := make([]int, len(MapKinds))
		dest := []any{&mp.Place, &mp.District, &mp.Lat, &mp.Lon, &mp.Count}
		for i := range counts {
			dest = append(dest, &counts[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan map place: %w", err)
		}

		if mp.District == "" {
			mp.District = UnknownLabel
		}
		mp.ByKind = make(map[string]int, len(MapKinds))
		for i, kind := range MapKinds {
			mp.ByKind[kind] = counts[i]
		}
		places = append(places, mp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating map places: %w", err)
	}

	return places, nil
}
