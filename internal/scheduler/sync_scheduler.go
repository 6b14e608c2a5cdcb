package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/weatherdash/offline-proxy/internal/dispatcher"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// SyncRunner runs the work registered for a sync tag.
type SyncRunner interface {
	HandleSync(ctx context.Context, tag string) (dispatcher.Report, error)
}

// Job is one periodic sync registration.
type Job struct {
	Tag      string
	Interval time.Duration
}

// SyncScheduler delivers periodic sync events. Runs of the same job never overlap and a run that
// fails is simply retried at the next interval.
type SyncScheduler struct {
	scheduler *gocron.Scheduler
	runner    SyncRunner
	jobs      []Job
	timeout   time.Duration
}

func NewSyncScheduler(runner SyncRunner, jobs []Job, timeout time.Duration) *SyncScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	s.WaitForScheduleAll()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SyncScheduler{scheduler: s, runner: runner, jobs: jobs, timeout: timeout}
}

// Start schedules every job with a positive interval and starts the scheduler. It stops when ctx
// is done; the returned channel is closed once it has.
func (s *SyncScheduler) Start(ctx context.Context) (<-chan struct{}, error) {
	log := logger.WithComponent("sched")
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			log.Debugf("periodic sync %s disabled", job.Tag)
			continue
		}
		job := job
		if _, err := s.scheduler.Every(job.Interval).Tag(job.Tag).Do(func() { s.run(ctx, job.Tag) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Tag, err)
		}
		log.Debugf("periodic sync %s every %v", job.Tag, job.Interval)
	}

	done := make(chan struct{})
	s.scheduler.StartAsync()
	go func() {
		defer close(done)
		<-ctx.Done()
		s.scheduler.Stop()
		log.Info("sync scheduler stopped")
	}()
	return done, nil
}

// Jobs returns the number of scheduled jobs.
func (s *SyncScheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *SyncScheduler) run(parent context.Context, tag string) {
	log := logger.WithComponent("sched")
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	report, err := s.runner.HandleSync(ctx, tag)
	switch {
	case errors.Is(err, dispatcher.ErrNoLocation):
		log.Debugf("periodic sync %s skipped: %v", tag, err)
	case err != nil:
		log.Warnf("periodic sync %s failed: %v", tag, err)
	default:
		log.Debugf("periodic sync %s: processed=%d failed=%d", tag, report.Processed, report.Failed)
	}
}
