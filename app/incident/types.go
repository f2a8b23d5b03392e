package incident

import (
	"time"
)

// Fields holds everything the extractor can recover from a title and
// description. Absent values are nil.
type Fields struct {
	Category       *string
	Subtype        *string
	Place          *string
	District       *string
	Status         *string
	Road           *string
	DistanceKm     *float64
	EndTimeRaw     *string
	RawDescription string
}

type Record struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Link            string     `json:"link"`
	PublishedAt     time.Time  `json:"published_at"`
	Category        *string    `json:"category"`
	Subtype         *string    `json:"subtype"`
	Place           *string    `json:"place"`
	District        *string    `json:"district"`
	Status          *string    `json:"status"`
	Road            *string    `json:"road"`
	DistanceKm      *float64   `json:"distance_km"`
	EndTimeRaw      *string    `json:"end_time_raw"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	RawDescription  string     `json:"raw_description"`
	IngestedAt      time.Time  `json:"ingested_at"`
}

// SameContent reports whether r and other agree on every extracted and
// derived field. IngestedAt is not compared.
func (r *Record) SameContent(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}

	return r.ID == other.ID &&
		r.Title == other.Title &&
		r.Link == other.Link &&
		r.PublishedAt.Equal(other.PublishedAt) &&
		equalPtr(r.Category, other.Category) &&
		equalPtr(r.Subtype, other.Subtype) &&
		equalPtr(r.Place, other.Place) &&
		equalPtr(r.District, other.District) &&
		equalPtr(r.Status, other.Status) &&
		equalPtr(r.Road, other.Road) &&
		equalPtr(r.DistanceKm, other.DistanceKm) &&
		equalPtr(r.EndTimeRaw, other.EndTimeRaw) &&
		equalTime(r.EndedAt, other.EndedAt) &&
		equalPtr(r.DurationMinutes, other.DurationMinutes) &&
		r.RawDescription == other.RawDescription
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
