package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/hasici-feed/app/feed"
)

type IngestFeedTask struct {
	Task
	Source *feed.Config
	runner Runner
}

func NewIngestFeedTask(source *feed.Config, runner Runner) *IngestFeedTask {
	return &IngestFeedTask{
		Task:   NewTask(TaskTypeIngestFeed, source.Name),
		Source: source,
		runner: runner,
	}
}

func (t *IngestFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.Source.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	summary, err := t.runner.Run(ctx, t.Source)
	if err != nil {
		// A malformed document will not fix itself on retry.
		if errors.Is(err, feed.ErrMalformedFeed) {
			t.GiveUp()
		}
		return fmt.Errorf("failed to ingest source: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceName,
		"run_id", summary.RunID,
		"duration", t.GetDuration(),
		"total", summary.ItemsTotal,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"skipped", summary.Skipped)

	return nil
}
