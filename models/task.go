package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of an async scrape task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// LiveScrapeResult is the outcome of a persisted scrape across platforms
type LiveScrapeResult struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	StoredProducts  []StoredProduct  `json:"stored_products,omitempty"`
	ScrapingResults []PlatformResult `json:"scraping_results"`
}

// ScrapeTask represents an async live scrape
type ScrapeTask struct {
	mu sync.RWMutex

	ID          string
	Query       string
	Status      TaskStatus
	Message     string
	Result      *LiveScrapeResult
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TaskView is an immutable copy of a task, safe to serialize
type TaskView struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	Status      TaskStatus        `json:"status"`
	Message     string            `json:"message"`
	Result      *LiveScrapeResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// NewScrapeTask creates a new queued task
func NewScrapeTask(query string) *ScrapeTask {
	return &ScrapeTask{
		ID:        "task_" + uuid.NewString(),
		Query:     query,
		Status:    TaskStatusQueued,
		Message:   "Task queued for processing",
		CreatedAt: time.Now(),
	}
}

// Start marks the task as processing
func (t *ScrapeTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Status = TaskStatusProcessing
	t.Message = "Scraping platforms..."
	now := time.Now()
	t.StartedAt = &now
}

// Complete marks the task as completed with result
func (t *ScrapeTask) Complete(result *LiveScrapeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Status = TaskStatusCompleted
	t.Message = result.Message
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// Fail marks the task as failed
func (t *ScrapeTask) Fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Status = TaskStatusFailed
	t.Message = "Scrape failed"
	t.Error = reason
	now := time.Now()
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *ScrapeTask) IsCompleted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// CurrentStatus returns the task status
func (t *ScrapeTask) CurrentStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// View returns a snapshot of the task
func (t *ScrapeTask) View() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TaskView{
		ID:          t.ID,
		Query:       t.Query,
		Status:      t.Status,
		Message:     t.Message,
		Result:      t.Result,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// Duration returns how long the task has run
func (t *ScrapeTask) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartedAt == nil {
		return 0
	}

	endTime := time.Now()
	if t.CompletedAt != nil {
		endTime = *t.CompletedAt
	}

	return endTime.Sub(*t.StartedAt)
}
