package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/publisher"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs one ticker per distinct poll interval. Each tick
// enqueues a pull task that re-reads the feeds configured for that
// interval, so membership changes land without a restart. The worker
// pool defaults to a single worker, which keeps outbound load on feed
// sources and the forum's write path serial.
type Scheduler struct {
	feedStore   *feed.Store
	fetcher     *feed.Fetcher
	publisher   *publisher.Publisher
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(feedStore *feed.Store, fetcher *feed.Fetcher, pub *publisher.Publisher, workerCount int) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		feedStore:   feedStore,
		fetcher:     fetcher,
		publisher:   pub,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() error {
	intervals, err := s.feedStore.ListIntervals()
	if err != nil {
		return fmt.Errorf("failed to list poll intervals: %w", err)
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	for _, interval := range intervals {
		s.wg.Add(1)
		go s.runInterval(interval)
	}

	slog.Info("Scheduler started", "intervals", intervals, "workers", s.workerCount)
	return nil
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

// runInterval enqueues a pull task immediately and then on every tick
// of the interval.
func (s *Scheduler) runInterval(interval int) {
	defer s.wg.Done()

	s.enqueuePull(interval)

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.enqueuePull(interval)
		}
	}
}

func (s *Scheduler) enqueuePull(interval int) {
	task := NewPullFeedsTask(interval, s.feedStore, s.fetcher, s.publisher)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue PullFeedsTask", "interval", interval, "error", err)
	}
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
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			// Tracked by the WaitGroup so Stop() cannot close the
			// queue while a retry is still pending.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				case <-time.After(retryDelay):
				}
				if retryErr := s.EnqueueTask(task); retryErr != nil {
					slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
