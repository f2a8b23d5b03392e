package database

import (
	"context"
	"time"

	"github.com/lysyi3m/hasici-feed/app/incident"
)

type IncidentRepository interface {
	GetIncident(ctx context.Context, id string) (*incident.Record, error)
	UpsertIncident(ctx context.Context, record *incident.Record) (bool, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]incident.Record, error)
	GetIncidentCount(ctx context.Context) (int, error)

	PlaceStats(ctx context.Context, filter IncidentFilter) ([]PlaceStat, error)
	CategoryStats(ctx context.Context, filter IncidentFilter) ([]CountStat, error)
	DistrictStats(ctx context.Context, filter IncidentFilter) ([]CountStat, error)
}

type PlaceRepository interface {
	GetPlace(ctx context.Context, key PlaceKey) (*PlaceCoordinate, error)
	ListMissingCoordinates(ctx context.Context, limit int) ([]PlaceKey, error)
	UpsertCoordinate(ctx context.Context, coord PlaceCoordinate) (bool, error)
	MarkAttempted(ctx context.Context, key PlaceKey, at time.Time) error
	MapPlaces(ctx context.Context, filter IncidentFilter) ([]MapPlace, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
