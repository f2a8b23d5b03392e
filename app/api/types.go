package api

import (
	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/feed"
	"github.com/lysyi3m/hasici-feed/app/incident"
	"github.com/lysyi3m/hasici-feed/app/tasks"
)

type GeneratorInterface interface {
	Run(channel feed.Channel, records []incident.Record) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	configCache  *feed.ConfigCache
	incidentRepo database.IncidentRepository
	placeRepo    database.PlaceRepository
	runRepo      database.RunRepository
	runner       tasks.Runner
	generator    GeneratorInterface
	baseURL      string
	version      string
}

// CoordinateRequest sets coordinates for a place by hand.
type CoordinateRequest struct {
	Place    string   `json:"place" binding:"required"`
	District string   `json:"district"`
	Lat      *float64 `json:"lat" binding:"required"`
	Lon      *float64 `json:"lon" binding:"required"`
}
