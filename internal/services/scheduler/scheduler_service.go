package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/common"
	"github.com/ternarybob/ebbwatch/internal/interfaces"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     interfaces.JobHandler
	runOnStart  bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
	runCount    int
}

// Service implements SchedulerService on top of robfig/cron
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
	jobMu   sync.Mutex // Protects jobs map and entries
	jobs    map[string]*jobEntry
	runs    sync.WaitGroup // Manual and run-on-start executions
	mu      sync.Mutex     // Protects running
	running bool
}

// NewService creates a new scheduler service. Cron-fired runs of a job are
// skipped while a previous run of it is still in progress.
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := &cronLogger{logger: logger}

	return &Service{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

var _ interfaces.SchedulerService = (*Service)(nil)

// Start begins the cron loop and runs every run-on-start job once
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler has been stopped")
	}

	s.cron.Start()
	s.running = true

	s.jobMu.Lock()
	var startNow []string
	for name, entry := range s.jobs {
		if entry.runOnStart {
			startNow = append(startNow, name)
		}
	}
	jobCount := len(s.jobs)
	s.jobMu.Unlock()

	s.logger.Info().
		Int("jobs", jobCount).
		Strs("run_on_start", startNow).
		Msg("Scheduler started")

	for _, name := range startNow {
		s.launch(name)
	}

	return nil
}

// Stop halts the scheduler, cancels the job context and waits for running jobs
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		s.runs.Wait()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.runs.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name, schedule, description string, runOnStart bool, handler interfaces.JobHandler) error {
	if handler == nil {
		return fmt.Errorf("job %s has no handler", name)
	}
	if err := common.ValidateJobSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		runOnStart:  runOnStart,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Bool("run_on_start", runOnStart).
		Msg("Job registered")

	return nil
}

// TriggerJob manually triggers a specific job to run immediately
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().
		Str("job_name", name).
		Msg("Manually triggering job execution")

	s.launch(name)
	return nil
}

// RunJob executes a job synchronously and returns its error
func (s *Service) RunJob(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	return s.executeJob(name)
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	active := s.IsRunning()

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	if active {
		if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
			nextRun = &next
		}
	}

	return &interfaces.JobStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		RunOnStart:  entry.runOnStart,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
		RunCount:    entry.runCount,
	}, nil
}

// GetAllJobStatuses returns all job statuses
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.jobMu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.jobMu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(names))
	for _, name := range names {
		if status, err := s.GetJobStatus(name); err == nil {
			statuses[name] = status
		}
	}

	return statuses
}

func (s *Service) launch(name string) {
	s.runs.Add(1)
	common.SafeGo(s.logger, "job:"+name, func() {
		defer s.runs.Done()
		_ = s.executeJob(name)
	})
}

// executeJob wraps job execution with overlap protection, panic recovery and status tracking
func (s *Service) executeJob(name string) (err error) {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job still running, skipping execution")
		return fmt.Errorf("job %s is already running", name)
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")
			err = fmt.Errorf("panic: %v", r)
		}

		completed := time.Now()
		s.jobMu.Lock()
		entry.isRunning = false
		entry.lastRun = &completed
		entry.runCount++
		if err != nil {
			entry.lastError = err.Error()
		} else {
			entry.lastError = ""
		}
		s.jobMu.Unlock()

		if err != nil {
			s.logger.Error().
				Str("job_name", name).
				Err(err).
				Dur("duration", completed.Sub(started)).
				Msg("Job execution failed")
			return
		}
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", completed.Sub(started)).
			Msg("Job execution completed")
	}()

	s.logger.Debug().Str("job_name", name).Msg("Job execution started")

	return handler(s.ctx)
}

// cronLogger routes robfig/cron's internal logging to arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", fmt.Sprint(keysAndValues...)).Msg(msg)
}
