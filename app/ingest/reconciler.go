package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lysyi3m/hasici-feed/app/civiltime"
	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/feed"
	"github.com/lysyi3m/hasici-feed/app/incident"
	"github.com/lysyi3m/hasici-feed/app/observability"
)

type Deps struct {
	Fetcher    Fetcher
	Parser     *feed.Parser
	Normalizer *civiltime.Normalizer
	Incidents  database.IncidentRepository
	Runs       database.RunRepository
	Enricher   *Enricher // optional
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
}

// Reconciler drives a source through fetch, parse, extraction and
// reconciliation against the incident store.
type Reconciler struct {
	fetcher    Fetcher
	parser     *feed.Parser
	normalizer *civiltime.Normalizer
	incidents  database.IncidentRepository
	runs       database.RunRepository
	enricher   *Enricher
	clock      clockwork.Clock
	metrics    *observability.Metrics
}

func NewReconciler(deps Deps) *Reconciler {
	r := &Reconciler{
		fetcher:    deps.Fetcher,
		parser:     deps.Parser,
		normalizer: deps.Normalizer,
		incidents:  deps.Incidents,
		runs:       deps.Runs,
		enricher:   deps.Enricher,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
	}
	if r.parser == nil {
		r.parser = feed.NewParser()
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	return r
}

// Run ingests one source. The returned summary is always non-nil. A fetch or
// parse failure aborts the run before anything is reconciled; records
// committed before a cancellation stay committed.
func (r *Reconciler) Run(ctx context.Context, source *feed.Config) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		Source:    source.Name,
		StartedAt: r.clock.Now().UTC(),
	}
	log := slog.With("run_id", summary.RunID, "source", source.Name)

	err := r.reconcile(ctx, source, summary, log)
	if err != nil {
		log.Error("Ingest run failed", "state", summary.State, "error", err)
		summary.State = StateFailed
		summary.Error = err.Error()
	} else {
		summary.State = StateDone
		if r.enricher != nil {
			summary.Geocoded = r.enricher.Run(ctx)
		}
	}
	summary.FinishedAt = r.clock.Now().UTC()

	r.record(ctx, summary, log)

	if err != nil {
		return summary, err
	}

	log.Info("Ingest run completed",
		"source_used", summary.SourceUsed,
		"total", summary.ItemsTotal,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"geocoded", summary.Geocoded,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	return summary, nil
}

func (r *Reconciler) reconcile(ctx context.Context, source *feed.Config, summary *Summary, log *slog.Logger) error {
	summary.State = StateFetching
	result, err := r.fetcher.Fetch(ctx, source.URL, source.Relays)
	if err != nil {
		return err
	}
	summary.SourceUsed = result.Source

	summary.State = StateParsing
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	items, err := r.parser.Run(result.Body)
	if err != nil {
		return err
	}
	summary.ItemsTotal = len(items)

	summary.State = StateExtracting
	builder := incident.NewBuilder(r.normalizer, source.Settings.GUIDPrefix)
	ingestedAt := r.clock.Now().UTC()

	records := make([]*incident.Record, 0, len(items))
	for _, item := range items {
		record, err := builder.Build(item, ingestedAt)
		if err != nil {
			if !errors.Is(err, incident.ErrInvalidItem) {
				return err
			}
			log.Debug("Item skipped", "link", item.Link, "error", err)
			summary.Skipped++
			r.observeItem("skipped")
			continue
		}
		records = append(records, record)
	}

	summary.State = StateReconciling
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}

		outcome, err := r.apply(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to reconcile item %s: %w", record.ID, err)
		}

		switch outcome {
		case "inserted":
			summary.Inserted++
		case "updated":
			summary.Updated++
		default:
			summary.Skipped++
		}
		r.observeItem(outcome)
	}

	return nil
}

func (r *Reconciler) apply(ctx context.Context, record *incident.Record) (string, error) {
	existing, err := r.incidents.GetIncident(ctx, record.ID)
	if err != nil {
		return "", err
	}

	if existing != nil && existing.SameContent(record) {
		return "skipped", nil
	}

	inserted, err := r.incidents.UpsertIncident(ctx, record)
	if err != nil {
		return "", err
	}
	if inserted {
		return "inserted", nil
	}
	return "updated", nil
}

func (r *Reconciler) record(ctx context.Context, summary *Summary, log *slog.Logger) {
	if r.metrics != nil {
		r.metrics.Runs.WithLabelValues(summary.Source, string(summary.State)).Inc()
		r.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
		success := 0.0
		if summary.State == StateDone {
			success = 1
		}
		r.metrics.LastRunSuccess.WithLabelValues(summary.Source).Set(success)
	}

	if r.runs == nil {
		return
	}

	status := database.RunStatusDone
	if summary.State == StateFailed {
		status = database.RunStatusFailed
	}

	run := database.Run{
		ID:         summary.RunID,
		Source:     summary.Source,
		SourceUsed: summary.SourceUsed,
		Status:     status,
		Error:      summary.Error,
		ItemsTotal: summary.ItemsTotal,
		Inserted:   summary.Inserted,
		Updated:    summary.Updated,
		Skipped:    summary.Skipped,
		Geocoded:   summary.Geocoded,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
	}

	// The audit row is written even when the run was cancelled.
	if err := r.runs.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to store run record", "error", err)
	}
}

func (r *Reconciler) observeItem(outcome string) {
	if r.metrics != nil {
		r.metrics.Items.WithLabelValues(outcome).Inc()
	}
}
