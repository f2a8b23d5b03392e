package database

import (
	"time"
)

const UnknownLabel = "Neznámé"

// PlaceKey identifies a place row. District is "" when the incident had none.
type PlaceKey struct {
	Place    string
	District string
}

type PlaceCoordinate struct {
	PlaceKey
	Lat         *float64
	Lon         *float64
	Provider    string
	Confidence  int
	AttemptedAt *time.Time
	UpdatedAt   time.Time
}

func (c *PlaceCoordinate) HasCoordinates() bool {
	return c != nil && c.Lat != nil && c.Lon != nil
}

type RunStatus string

const (
	RunStatusDone   RunStatus = "done"
	RunStatusFailed RunStatus = "failed"
)

type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SourceUsed string    `json:"source_used"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	ItemsTotal int       `json:"items_total"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Geocoded   int       `json:"geocoded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// IncidentFilter narrows incident queries. Zero values mean "no constraint".
type IncidentFilter struct {
	From           *time.Time
	To             *time.Time
	Place          string
	District       string
	Category       string
	CategoryPrefix bool
	Limit          int
}

type PlaceStat struct {
	Place    string `json:"place"`
	District string `json:"district"`
	Count    int    `json:"count"`
}

type CountStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type MapPlace struct {
	Place    string         `json:"place"`
	District string         `json:"district"`
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
	Count    int            `json:"count"`
	ByKind   map[string]int `json:"by_kind"`
}
