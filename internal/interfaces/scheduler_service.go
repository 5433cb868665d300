package interfaces

import (
	"context"
	"time"
)

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string
	Schedule    string
	Description string
	RunOnStart  bool
	LastRun     *time.Time
	NextRun     *time.Time
	IsRunning   bool
	LastError   string
	RunCount    int
}

// JobHandler is the work a scheduled job performs. The context is cancelled
// when the scheduler stops.
type JobHandler func(ctx context.Context) error

// SchedulerService manages cron-based scheduling
type SchedulerService interface {
	// Start begins firing registered jobs and runs run-on-start jobs once
	Start() error

	// Stop halts the scheduler and waits for running jobs to return
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterJob registers a new job with the scheduler
	RegisterJob(name, schedule, description string, runOnStart bool, handler JobHandler) error

	// TriggerJob runs a job immediately in the background
	TriggerJob(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*JobStatus
}
