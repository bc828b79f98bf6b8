// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/robfig/cron/v3"
)

// Job is one periodic task. Run gets a context cancelled on Stop.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]Job
	running map[string]bool
}

func New(log *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    map[string]Job{},
		running: map[string]bool{},
	}
}

// Add registers j. An empty spec leaves the job registered for RunNow only.
func (s *Scheduler) Add(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", j.Name)
	}
	if j.Spec != "" {
		if _, err := s.cron.AddFunc(j.Spec, func() { s.run(j) }); err != nil {
			return fmt.Errorf("scheduler: job %q spec %q: %w", j.Name, j.Spec, err)
		}
	}
	s.jobs[j.Name] = j
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes the named job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(j)
}

// run skips a tick while the previous run of the same job is still going.
func (s *Scheduler) run(j Job) error {
	s.mu.Lock()
	if s.running[j.Name] {
		s.mu.Unlock()
		s.log.Warn("job still running, skipping tick", "job", j.Name)
		return nil
	}
	s.running[j.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, j.Name)
		s.mu.Unlock()
	}()

	ctx := s.ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	ctx = logging.WithContext(ctx, s.log.With("job", j.Name))

	start := time.Now()
	err := j.Run(ctx)
	if err != nil {
		s.log.Error("job failed", "job", j.Name, "elapsed", time.Since(start), logging.Err(err))
		return err
	}
	s.log.Info("job finished", "job", j.Name, "elapsed", time.Since(start))
	return nil
}
