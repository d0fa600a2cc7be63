package scheduler

import (
	"context"
	"sync"
	"time"

	"marketStructureBot/internal/ports"
)

// Schedule yields the next run time strictly after the given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Every runs at a fixed interval.
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// DailyAt runs once a day at a fixed UTC wall-clock time.
type DailyAt struct {
	Hour   int
	Minute int
}

func (d DailyAt) Next(after time.Time) time.Time {
	t := after.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Job is one recurring unit of work. Run errors are logged and the job stays
// scheduled; a run is never started while the previous one is in flight.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

// JobStatus is a snapshot of one job's execution history.
type JobStatus struct {
	Name     string
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
}

// Scheduler drives a set of jobs, one goroutine per job.
type Scheduler struct {
	logger ports.Logger
	jobs   []Job

	mu     sync.Mutex
	status map[string]*JobStatus

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an empty scheduler.
func New(logger ports.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		status: make(map[string]*JobStatus),
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
	s.status[job.Name] = &JobStatus{Name: job.Name}
}

// Start launches all registered jobs and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info(context.Background(), "Scheduler stopped")
}

// Status returns a copy of the status for the named job, or nil.
func (s *Scheduler) Status(name string) *JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	next := job.Schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx, job)
			next = job.Schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)

	s.mu.Lock()
	st := s.status[job.Name]
	st.Runs++
	st.LastRun = started
	st.LastErr = err
	if err != nil {
		st.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return // shutdown, not a job failure worth alerting on
		}
		s.logger.Error(ctx, err, "Job run failed", map[string]interface{}{"job": job.Name, "elapsed": elapsed.String()})
		return
	}
	s.logger.Debug(ctx, "Job run finished", map[string]interface{}{"job": job.Name, "elapsed": elapsed.String()})
}
