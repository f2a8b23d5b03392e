package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type TaskType string

const (
	TaskTypeIngestFeed TaskType = "ingest_feed"
)

const (
	DefaultMaxRetries = 3
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSourceName() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	GiveUp()
	Start(clock clockwork.Clock)
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task type. Timing follows the
// clock handed to Start, which is the scheduler's.
type Task struct {
	ID         string
	Type       TaskType
	SourceName string
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time

	clock     clockwork.Clock
	permanent bool
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSourceName() string {
	return t.SourceName
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return !t.permanent && t.RetryCount < t.MaxRetries
}

// GiveUp marks the last failure as permanent.
func (t *Task) GiveUp() {
	t.permanent = true
}

// Start records the start of an attempt. Retries restart the measurement.
func (t *Task) Start(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	t.clock = clock
	t.StartedAt = &now
}

// GetDuration returns the time spent in the current attempt, or 0 before Start.
func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil || t.clock == nil {
		return 0
	}
	return t.clock.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, sourceName string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		SourceName: sourceName,
		MaxRetries: DefaultMaxRetries,
	}
}
