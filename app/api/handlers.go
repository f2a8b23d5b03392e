package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/feed"
	"github.com/lysyi3m/hasici-feed/app/geocode"
	"github.com/lysyi3m/hasici-feed/app/ingest"
	"github.com/lysyi3m/hasici-feed/app/tasks"
)

const serviceName = "hasici-feed"

func NewHandler(configCache *feed.ConfigCache, incidentRepo database.IncidentRepository,
	placeRepo database.PlaceRepository, runRepo database.RunRepository,
	runner tasks.Runner, baseURL, version string) *Handler {
	return &Handler{
		configCache:  configCache,
		incidentRepo: incidentRepo,
		placeRepo:    placeRepo,
		runRepo:      runRepo,
		runner:       runner,
		generator:    feed.NewGenerator(),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		version:      version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"ok":                    true,
		"service":               serviceName,
		"version":               h.version,
		"time":                  time.Now().UTC().Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	if count, err := h.incidentRepo.GetIncidentCount(c.Request.Context()); err == nil {
		health["incidents"] = count
	}

	c.JSON(http.StatusOK, health)
}

// Ingest runs every enabled source once, in name order.
func (h *Handler) Ingest(c *gin.Context) {
	sources := h.configCache.GetEnabledConfigs()
	if len(sources) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "no enabled sources configured"})
		return
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	runs := make([]*ingest.Summary, 0, len(names))
	var failures []string
	for _, name := range names {
		summary, err := h.runner.Run(c.Request.Context(), sources[name])
		if summary != nil {
			runs = append(runs, summary)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": strings.Join(failures, "; "),
			"runs":  runs,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "runs": runs})
}

func (h *Handler) ListIncidents(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	records, err := h.incidentRepo.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "list_incidents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": records, "total": len(records)})
}

func (h *Handler) PlaceStats(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	rows, err := h.incidentRepo.PlaceStats(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "place_stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": rows})
}

func (h *Handler) CategoryStats(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	rows, err := h.incidentRepo.CategoryStats(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "category_stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": rows})
}

func (h *Handler) DistrictStats(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	rows, err := h.incidentRepo.DistrictStats(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "district_stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": rows})
}

func (h *Handler) MapPlaces(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	places, err := h.placeRepo.MapPlaces(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "map_places", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "kinds": database.MapKinds, "data": places})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	runs, err := h.runRepo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.databaseError(c, "list_runs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": runs})
}

// GetFeed re-exports normalized incidents as RSS.
func (h *Handler) GetFeed(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	records, err := h.incidentRepo.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_incidents", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	channel := feed.Channel{
		Title:       "Zásahy jednotek požární ochrany",
		Link:        h.baseURL + "/incidents",
		Description: "Normalizované zásahy z RSS hasičů",
		SelfLink:    h.baseURL + c.Request.URL.RequestURI(),
		Version:     h.version,
	}

	rss, err := h.generator.Run(channel, records)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(records)))
	if len(records) > 0 {
		c.Header("X-Last-Updated", records[0].IngestedAt.Format(time.RFC3339))
	}

	c.String(http.StatusOK, rss)
}

// SetCoordinates stores manually curated coordinates. They outrank geocoded
// ones.
func (h *Handler) SetCoordinates(c *gin.Context) {
	var req CoordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	place := strings.TrimSpace(req.Place)
	if place == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "place is required"})
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "coordinates out of range"})
		return
	}

	now := time.Now().UTC()
	written, err := h.placeRepo.UpsertCoordinate(c.Request.Context(), database.PlaceCoordinate{
		PlaceKey:   database.PlaceKey{Place: place, District: strings.TrimSpace(req.District)},
		Lat:        req.Lat,
		Lon:        req.Lon,
		Provider:   geocode.ProviderManual,
		Confidence: geocode.Confidence(geocode.ProviderManual),
		UpdatedAt:  now,
	})
	if err != nil {
		h.databaseError(c, "upsert_coordinate", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "written": written})
}

func (h *Handler) databaseError(c *gin.Context, operation string, err error) {
	slog.Error("Database error", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "database error"})
}

// parseFilter reads from, to, place, district, category, category_prefix
// and limit. Times are RFC 3339 or a plain date.
func parseFilter(c *gin.Context) (database.IncidentFilter, error) {
	var filter database.IncidentFilter

	from, err := parseTimeParam(c, "from")
	if err != nil {
		return filter, err
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return filter, err
	}
	filter.From = from
	filter.To = to

	filter.Place = strings.TrimSpace(c.Query("place"))
	filter.District = strings.TrimSpace(c.Query("district"))

	if prefix := strings.TrimSpace(c.Query("category_prefix")); prefix != "" {
		filter.Category = prefix
		filter.CategoryPrefix = true
	} else {
		filter.Category = strings.TrimSpace(c.Query("category"))
	}

	if filter.Limit, err = parseLimit(c); err != nil {
		return filter, err
	}

	return filter, nil
}

func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("invalid %s: %q", name, value)
}

func parseLimit(c *gin.Context) (int, error) {
	value := c.Query("limit")
	if value == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit: %q", value)
	}
	return limit, nil
}
