package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lysyi3m/hasici-feed/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultInterval       = 30 * time.Second
	DefaultTaskTimeout    = 5 * time.Minute
	DefaultRetryBaseDelay = time.Second
	maxRetryDelay         = 30 * time.Second
	queueSize             = 300
)

type Options struct {
	Interval       time.Duration
	WorkerCount    int
	TaskTimeout    time.Duration
	RetryBaseDelay time.Duration
	Clock          clockwork.Clock
}

type Scheduler struct {
	configCache    *feed.ConfigCache
	runner         Runner
	clock          clockwork.Clock
	interval       time.Duration
	workerCount    int
	taskTimeout    time.Duration
	retryBaseDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface

	mu        sync.Mutex
	nextFetch map[string]time.Time
}

func NewScheduler(configCache *feed.ConfigCache, runner Runner, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Scheduler{
		configCache:    configCache,
		runner:         runner,
		clock:          opts.Clock,
		interval:       opts.Interval,
		workerCount:    opts.WorkerCount,
		taskTimeout:    opts.TaskTimeout,
		retryBaseDelay: opts.RetryBaseDelay,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, queueSize),
		nextFetch:      make(map[string]time.Time),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.Chan():
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// NextFetch reports when a source is due again. The zero time means it has
// not been scheduled yet.
func (s *Scheduler) NextFetch(sourceName string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFetch[sourceName]
}

func (s *Scheduler) enqueueTasks() {
	sources := s.configCache.GetEnabledConfigs()
	if len(sources) == 0 {
		slog.Debug("No enabled sources found")
		return
	}

	now := s.clock.Now().UTC()

	for _, source := range sources {
		if !s.due(source.Name, now) {
			slog.Debug("Source not due for refresh yet", "source", source.Name, "next_fetch_at", s.NextFetch(source.Name))
			continue
		}

		if err := s.EnqueueTask(NewIngestFeedTask(source, s.runner)); err != nil {
			slog.Warn("Failed to enqueue IngestFeedTask", "source", source.Name, "error", err)
			continue
		}

		s.schedule(source, now)
	}
}

func (s *Scheduler) due(sourceName string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextFetch[sourceName]
	return !ok || !next.After(now)
}

func (s *Scheduler) schedule(source *feed.Config, now time.Time) {
	interval := source.Settings.RefreshInterval
	if interval <= 0 {
		interval = feed.DefaultRefreshInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFetch[source.Name] = now.Add(time.Duration(interval) * time.Second)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start(s.clock)

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-s.clock.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

func (s *Scheduler) retryDelay(retryCount int) time.Duration {
	delay := s.retryBaseDelay * time.Duration(1<<uint(retryCount-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
