package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/incident"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "data", "hasici.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := database.RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 3, version)

	return db
}

func ptr[T any](v T) *T { return &v }

func sampleRecord(id string, published time.Time) *incident.Record {
	return &incident.Record{
		ID:              id,
		Title:           "dopravní nehoda - uvolnění komunikace - Kutná Hora",
		Link:            "https://www.example.cz/zasahy-jpo/" + id + "/",
		PublishedAt:     published,
		Category:        ptr("dopravní nehoda"),
		Subtype:         ptr("uvolnění komunikace"),
		Place:           ptr("Kutná Hora"),
		District:        ptr("Kutná Hora"),
		Status:          ptr("ukončená"),
		Road:            ptr("D1"),
		DistanceKm:      ptr(41.5),
		EndTimeRaw:      ptr("1. října 2026, 21:32"),
		EndedAt:         ptr(published.Add(90 * time.Minute)),
		DurationMinutes: ptr(90),
		RawDescription:  "stav: ukončená\nKutná Hora\nokres Kutná Hora",
		IngestedAt:      published.Add(2 * time.Hour),
	}
}

func TestNewConnection_EmptyPath(t *testing.T) {
	_, err := database.NewConnection("")
	require.Error(t, err)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := database.RunMigrations(db)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 3, version)
}

func TestIncidentRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := database.NewIncidentRepository(newTestDB(t))
	published := time.Date(2026, time.October, 1, 18, 2, 0, 0, time.UTC)

	missing, err := repo.GetIncident(ctx, "12345")
	require.NoError(t, err)
	assert.Nil(t, missing)

	record := sampleRecord("12345", published)
	inserted, err := repo.UpsertIncident(ctx, record)
	require.NoError(t, err)
	assert.True(t, inserted)

	stored, err := repo.GetIncident(ctx, "12345")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, record.SameContent(stored), "stored row should round-trip every field")
	assert.True(t, record.IngestedAt.Equal(stored.IngestedAt))

	changed := *record
	changed.Status = ptr("probíhá")
	changed.EndedAt = nil
	changed.DurationMinutes = nil
	inserted, err = repo.UpsertIncident(ctx, &changed)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err = repo.GetIncident(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, "probíhá", *stored.Status)
	assert.Nil(t, stored.EndedAt)
	assert.Nil(t, stored.DurationMinutes)

	count, err := repo.GetIncidentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIncidentRepository_UpsertEnsuresPlace(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	incidents := database.NewIncidentRepository(db)
	places := database.NewPlaceRepository(db)
	published := time.Date(2026, time.October, 1, 18, 2, 0, 0, time.UTC)

	withDistrict := sampleRecord("1", published)
	withoutDistrict := sampleRecord("2", published)
	withoutDistrict.Place = ptr("Bobnice")
	withoutDistrict.District = nil
	noPlace := sampleRecord("3", published)
	noPlace.Place = nil

	for _, r := range []*incident.Record{withDistrict, withoutDistrict, noPlace} {
		_, err := incidents.UpsertIncident(ctx, r)
		require.NoError(t, err)
	}

	missing, err := places.ListMissingCoordinates(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []database.PlaceKey{
		{Place: "Kutná Hora", District: "Kutná Hora"},
		{Place: "Bobnice", District: ""},
	}, missing)
}

func TestIncidentRepository_ListIncidentsFilter(t *testing.T) {
	ctx := context.Background()
	repo := database.NewIncidentRepository(newTestDB(t))
	base := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	fire := sampleRecord("1", base)
	fire.Category = ptr("požár")
	fire.Subtype = ptr("nízké budovy")

	fireOutdoor := sampleRecord("2", base.Add(time.Hour))
	fireOutdoor.Category = ptr("požár - lesní porost")
	fireOutdoor.Place = ptr("Kolín")
	fireOutdoor.District = ptr("Kolín")

	crash := sampleRecord("3", base.Add(2*time.Hour))

	for _, r := range []*incident.Record{fire, fireOutdoor, crash} {
		_, err := repo.UpsertIncident(ctx, r)
		require.NoError(t, err)
	}

	all, err := repo.ListIncidents(ctx, database.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID, "newest first")

	exact, err := repo.ListIncidents(ctx, database.IncidentFilter{Category: "požár"})
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "1", exact[0].ID)

	prefix, err := repo.ListIncidents(ctx, database.IncidentFilter{Category: "požár", CategoryPrefix: true})
	require.NoError(t, err)
	assert.Len(t, prefix, 2)

	from := base.Add(30 * time.Minute)
	to := base.Add(90 * time.Minute)
	window, err := repo.ListIncidents(ctx, database.IncidentFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "2", window[0].ID)

	byPlace, err := repo.ListIncidents(ctx, database.IncidentFilter{Place: "Kolín", District: "Kolín"})
	require.NoError(t, err)
	require.Len(t, byPlace, 1)

	limited, err := repo.ListIncidents(ctx, database.IncidentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestIncidentRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := database.NewIncidentRepository(newTestDB(t))
	base := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	a := sampleRecord("1", base)
	b := sampleRecord("2", base)
	c := sampleRecord("3", base)
	c.Category = nil
	c.District = nil
	c.Place = nil

	for _, r := range []*incident.Record{a, b, c} {
		_, err := repo.UpsertIncident(ctx, r)
		require.NoError(t, err)
	}

	categories, err := repo.CategoryStats(ctx, database.IncidentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []database.CountStat{
		{Name: "dopravní nehoda", Count: 2},
		{Name: database.UnknownLabel, Count: 1},
	}, categories)

	districts, err := repo.DistrictStats(ctx, database.IncidentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []database.CountStat{
		{Name: "Kutná Hora", Count: 2},
		{Name: database.UnknownLabel, Count: 1},
	}, districts)

	places, err := repo.PlaceStats(ctx, database.IncidentFilter{Category: "dopravní", CategoryPrefix: true})
	require.NoError(t, err)
	assert.Equal(t, []database.PlaceStat{
		{Place: "Kutná Hora", District: "Kutná Hora", Count: 2},
	}, places)
}

func TestPlaceRepository_UpsertCoordinateConfidence(t *testing.T) {
	ctx := context.Background()
	repo := database.NewPlaceRepository(newTestDB(t))
	key := database.PlaceKey{Place: "Bobnice", District: "Nymburk"}
	now := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	written, err := repo.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey: key, Lat: ptr(50.2), Lon: ptr(15.0), Provider: "manual", Confidence: 100, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey: key, Lat: ptr(51.0), Lon: ptr(16.0), Provider: "nominatim", Confidence: 50, UpdatedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, written, "lower confidence must not overwrite")

	stored, err := repo.GetPlace(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "manual", stored.Provider)
	assert.InDelta(t, 50.2, *stored.Lat, 0.0001)
	assert.True(t, stored.HasCoordinates())

	written, err = repo.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey: key, Lat: ptr(50.3), Lon: ptr(15.1), Provider: "manual", Confidence: 100, UpdatedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, written, "equal confidence may refresh")

	_, err = repo.UpsertCoordinate(ctx, database.PlaceCoordinate{PlaceKey: key})
	assert.Error(t, err)

	absent, err := repo.GetPlace(ctx, database.PlaceKey{Place: "Nowhere"})
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestPlaceRepository_ListMissingCoordinatesOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	incidents := database.NewIncidentRepository(db)
	places := database.NewPlaceRepository(db)
	base := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	for i, name := range []string{"A", "B", "C"} {
		r := sampleRecord(name, base)
		r.Place = ptr(name)
		r.District = nil
		r.IngestedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := incidents.UpsertIncident(ctx, r)
		require.NoError(t, err)
	}

	require.NoError(t, places.MarkAttempted(ctx, database.PlaceKey{Place: "A"}, base))

	missing, err := places.ListMissingCoordinates(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []database.PlaceKey{{Place: "B"}, {Place: "C"}}, missing)

	_, err = places.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey: database.PlaceKey{Place: "B"}, Lat: ptr(1.0), Lon: ptr(2.0), Provider: "nominatim", Confidence: 50,
	})
	require.NoError(t, err)

	missing, err = places.ListMissingCoordinates(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []database.PlaceKey{{Place: "C"}, {Place: "A"}}, missing)
}

func TestPlaceRepository_MapPlaces(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	incidents := database.NewIncidentRepository(db)
	places := database.NewPlaceRepository(db)
	base := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	crash := sampleRecord("1", base)
	fire := sampleRecord("2", base)
	fire.Category = ptr("požár")
	elsewhere := sampleRecord("3", base)
	elsewhere.Place = ptr("Kolín")
	elsewhere.District = ptr("Kolín")

	for _, r := range []*incident.Record{crash, fire, elsewhere} {
		_, err := incidents.UpsertIncident(ctx, r)
		require.NoError(t, err)
	}

	_, err := places.UpsertCoordinate(ctx, database.PlaceCoordinate{
		PlaceKey: database.PlaceKey{Place: "Kutná Hora", District: "Kutná Hora"},
		Lat:      ptr(49.95), Lon: ptr(15.27), Provider: "nominatim", Confidence: 50,
	})
	require.NoError(t, err)

	mapPlaces, err := places.MapPlaces(ctx, database.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, mapPlaces, 1, "places without coordinates are not on the map")

	mp := mapPlaces[0]
	assert.Equal(t, "Kutná Hora", mp.Place)
	assert.Equal(t, 2, mp.Count)
	assert.Equal(t, 1, mp.ByKind["požár"])
	assert.Equal(t, 1, mp.ByKind["dopravní nehoda"])
	assert.Equal(t, 0, mp.ByKind["planý poplach"])
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := database.NewRunRepository(newTestDB(t))
	started := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateRun(ctx, database.Run{
		ID: "run-1", Source: "default", SourceUsed: "https://example.cz/rss", Status: database.RunStatusDone,
		ItemsTotal: 3, Inserted: 2, Skipped: 1, StartedAt: started, FinishedAt: started.Add(time.Second),
	}))
	require.NoError(t, repo.CreateRun(ctx, database.Run{
		ID: "run-2", Source: "default", Status: database.RunStatusFailed, Error: "fetch failed",
		StartedAt: started.Add(time.Minute), FinishedAt: started.Add(time.Minute),
	}))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, database.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 2, runs[1].Inserted)
	assert.True(t, started.Equal(runs[1].StartedAt))
}
