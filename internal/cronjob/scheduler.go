package cronjob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tgifai/netguard/internal/pkg/logs"
)

const (
	defaultTickInterval = 15 * time.Second
	defaultJobTimeout   = 5 * time.Minute
)

type Options struct {
	MaxConcurrentRuns int
	JobTimeout        time.Duration
	TickInterval      time.Duration
}

// Scheduler runs in-process periodic jobs. Jobs are not persisted; they are
// registered again on every start.
type Scheduler struct {
	opts       Options
	concurrent chan struct{} // semaphore sized to MaxConcurrentRuns

	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]struct{} // singleton guard

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(opts Options) *Scheduler {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}

	return &Scheduler{
		opts:       opts,
		concurrent: make(chan struct{}, opts.MaxConcurrentRuns),
		jobs:       make(map[string]*Job),
		running:    make(map[string]struct{}),
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	n := len(s.jobs)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	logs.CtxInfo(ctx, "[cronjob] scheduler started (jobs=%d, max_concurrent=%d)", n, cap(s.concurrent))
	return nil
}

// Stop cancels the scheduling loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logs.CtxWarn(ctx, "[cronjob] stop timed out waiting for running jobs")
	}
	logs.CtxInfo(ctx, "[cronjob] scheduler stopped")
}

// AddJob registers fn under name. The first run is one schedule step from now.
func (s *Scheduler) AddJob(name, schedule string, fn JobFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name is required")
	}
	if fn == nil {
		return fmt.Errorf("job %s has no function", name)
	}
	sched, err := parseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = &Job{
		Name:      name,
		Schedule:  strings.TrimSpace(schedule),
		NextRunAt: sched.Next(time.Now()),
		run:       fn,
		sched:     sched,
	}
	return nil
}

func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// ListJobs returns a snapshot of all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// ---------------------------------------------------------------------------
// internal
// ---------------------------------------------------------------------------

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, name := range s.dueJobs(now) {
		if !s.tryAcquire() {
			break // hit concurrency limit, try next tick
		}
		if !s.markRunning(name) {
			s.release()
			continue // singleton: skip if still executing
		}

		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()
			defer s.release()
			defer s.markNotRunning(name)
			s.executeJob(ctx, name, now)
		}(name)
	}
}

func (s *Scheduler) dueJobs(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for name, j := range s.jobs {
		if !j.NextRunAt.After(now) {
			due = append(due, name)
		}
	}
	sort.Strings(due)
	return due
}

func (s *Scheduler) executeJob(ctx context.Context, name string, now time.Time) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	var fn JobFunc
	if ok {
		fn = job.run
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()
	err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok = s.jobs[name]
	if !ok {
		return
	}
	if err != nil {
		job.ConsecutiveErr++
		delay := backoffDelay(job.ConsecutiveErr)
		job.NextRunAt = now.Add(delay)
		logs.CtxWarn(ctx, "[cronjob] job %s failed: %v, backoff %v (errors=%d)", name, err, delay, job.ConsecutiveErr)
		return
	}

	logs.CtxDebug(ctx, "[cronjob] fired job %s", name)
	job.LastRunAt = &now
	job.ConsecutiveErr = 0
	job.NextRunAt = job.sched.Next(now)
}

// concurrency helpers

func (s *Scheduler) tryAcquire() bool {
	select {
	case s.concurrent <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) release() {
	<-s.concurrent
}

func (s *Scheduler) markRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[name]; ok {
		return false
	}
	s.running[name] = struct{}{}
	return true
}

func (s *Scheduler) markNotRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}
