package ingest

import (
	"context"
	"time"

	"github.com/lysyi3m/hasici-feed/app/feed"
)

type State string

const (
	StateFetching    State = "fetching"
	StateParsing     State = "parsing"
	StateExtracting  State = "extracting"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Fetcher retrieves the raw feed document, trying relays after the direct
// location.
type Fetcher interface {
	Fetch(ctx context.Context, location string, relays []string) (*feed.FetchResult, error)
}

// Summary describes one ingestion run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	SourceUsed string    `json:"source_used"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	ItemsTotal int       `json:"items_total"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Geocoded   int       `json:"geocoded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
