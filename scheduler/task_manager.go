package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricecart/metrics"
	"pricecart/models"

	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 100
	defaultTaskMaxAge  = time.Hour
	defaultCleanupTick = time.Minute
)

// LiveScrapeFunc runs a persisted live scrape for a query
type LiveScrapeFunc func(ctx context.Context, query string) (*models.LiveScrapeResult, error)

// TaskStats summarizes the task manager
type TaskStats struct {
	TotalTasks    int            `json:"total_tasks"`
	ActiveWorkers int            `json:"active_workers"`
	MaxWorkers    int            `json:"max_workers"`
	QueueSize     int            `json:"queue_size"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
}

// TaskManager runs live scrapes in the background on a fixed set of workers
type TaskManager struct {
	mu     sync.RWMutex
	tasks  map[string]*models.ScrapeTask
	queue  chan *models.ScrapeTask
	active int

	maxWorkers int
	maxAge     time.Duration
	scrape     LiveScrapeFunc
	metrics    *metrics.Metrics
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskManager starts maxWorkers workers and a cleanup loop that forgets
// finished tasks after an hour
func NewTaskManager(scrape LiveScrapeFunc, maxWorkers int, m *metrics.Metrics, log *zap.Logger) *TaskManager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	tm := &TaskManager{
		tasks:      make(map[string]*models.ScrapeTask),
		queue:      make(chan *models.ScrapeTask, defaultQueueSize),
		maxWorkers: maxWorkers,
		maxAge:     defaultTaskMaxAge,
		scrape:     scrape,
		metrics:    m,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < maxWorkers; i++ {
		tm.wg.Add(1)
		go tm.worker()
	}
	tm.wg.Add(1)
	go tm.cleanupLoop(defaultCleanupTick)

	log.Info("task manager started", zap.Int("workers", maxWorkers))
	return tm
}

// Submit queues a live scrape. The task fails right away when the queue is full.
func (tm *TaskManager) Submit(query string) *models.ScrapeTask {
	task := models.NewScrapeTask(query)

	tm.mu.Lock()
	tm.tasks[task.ID] = task
	tm.mu.Unlock()

	select {
	case tm.queue <- task:
		tm.log.Info("task submitted", zap.String("task_id", task.ID), zap.String("query", query))
	default:
		task.Fail("task queue is full")
		tm.metrics.TaskFinished(string(models.TaskStatusFailed))
		tm.log.Warn("task rejected, queue full", zap.String("task_id", task.ID))
	}
	return task
}

// Get returns a task by id
func (tm *TaskManager) Get(taskID string) (*models.ScrapeTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	return task, ok
}

// CleanupOldTasks forgets finished tasks created more than maxAge ago
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		tm.log.Debug("cleaned up old tasks", zap.Int("removed", removed))
	}
	return removed
}

// Stats returns task counts by status
func (tm *TaskManager) Stats() TaskStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := TaskStats{
		TotalTasks:    len(tm.tasks),
		ActiveWorkers: tm.active,
		MaxWorkers:    tm.maxWorkers,
		QueueSize:     len(tm.queue),
		TasksByStatus: make(map[string]int),
	}
	for _, task := range tm.tasks {
		stats.TasksByStatus[string(task.CurrentStatus())]++
	}
	return stats
}

// Stop cancels running scrapes and waits for the workers to exit
func (tm *TaskManager) Stop() {
	tm.cancel()
	tm.wg.Wait()
	tm.log.Info("task manager stopped")
}

func (tm *TaskManager) worker() {
	defer tm.wg.Done()
	for {
		select {
		case <-tm.ctx.Done():
			return
		case task := <-tm.queue:
			tm.process(task)
		}
	}
}

func (tm *TaskManager) process(task *models.ScrapeTask) {
	tm.setActive(1)
	defer tm.setActive(-1)

	log := tm.log.With(zap.String("task_id", task.ID), zap.String("query", task.Query))
	task.Start()

	result, err := tm.run(task.Query)
	if err == nil && result == nil {
		err = fmt.Errorf("no result")
	}
	if err != nil {
		task.Fail("live scrape failed: " + err.Error())
		log.Warn("task failed", zap.Error(err), zap.Duration("duration", task.Duration()))
	} else {
		task.Complete(result)
		log.Info("task completed", zap.Bool("success", result.Success), zap.Duration("duration", task.Duration()))
	}
	tm.metrics.TaskFinished(string(task.CurrentStatus()))
}

func (tm *TaskManager) run(query string) (result *models.LiveScrapeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tm.scrape(tm.ctx, query)
}

func (tm *TaskManager) setActive(delta int) {
	tm.mu.Lock()
	tm.active += delta
	tm.mu.Unlock()
}

func (tm *TaskManager) cleanupLoop(every time.Duration) {
	defer tm.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tm.CleanupOldTasks(tm.maxAge)
		case <-tm.ctx.Done():
			return
		}
	}
}
