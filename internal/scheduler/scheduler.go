// Package scheduler runs LeadPipe's periodic work.
//
// Each job runs on a fixed interval through robfig/cron. Runs of the same job never overlap
// and a panicking run is recovered and logged; different jobs run independently.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]cron.Job
}

// NewScheduler creates and starts a cron scheduler. Job contexts derive from ctx and are
// cancelled by Stop.
func NewScheduler(ctx context.Context) *Scheduler {
	// Standard 5-field cron plus descriptors such as @every.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLogger(slogLogger{}), cron.WithLocation(time.UTC))
	c.Start()
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel, jobs: map[string]cron.Job{}}
}

// Every registers fn under name to run every interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	return s.AddJob(name, "@every "+interval.String(), fn)
}

// AddJob schedules fn under name using the provided cron expression.
// It returns an error if the expression is invalid or the name is taken.
func (s *Scheduler) AddJob(name, expr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	job := cron.NewChain(cron.Recover(slogLogger{}), cron.SkipIfStillRunning(slogLogger{})).
		Then(cron.FuncJob(func() { s.run(name, fn) }))
	if _, err := s.cron.AddJob(expr, job); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.jobs[name] = job
	slog.Info("Scheduler.AddJob: registered", "job", name, "schedule", expr)
	return nil
}

// RunNow starts a run of the named job in the background. It is skipped if the job is
// already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()
	return nil
}

// RunAll starts one run of every registered job.
func (s *Scheduler) RunAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		_ = s.RunNow(name)
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) run(name string, fn JobFunc) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := fn(s.ctx); err != nil {
		slog.Error("Scheduler.run: job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Debug("Scheduler.run: job finished", "job", name, "duration", time.Since(start))
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
