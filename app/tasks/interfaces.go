package tasks

import (
	"context"

	"github.com/lysyi3m/hasici-feed/app/feed"
	"github.com/lysyi3m/hasici-feed/app/ingest"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run ingestion in the background.
// Example usage:
//
//	scheduler := NewScheduler(configCache, reconciler, Options{Interval: 30 * time.Second, WorkerCount: 2})
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewIngestFeedTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Runner ingests a single source.
type Runner interface {
	Run(ctx context.Context, source *feed.Config) (*ingest.Summary, error)
}

var _ Runner = (*ingest.Reconciler)(nil)
