// Package maintenance runs the periodic sweeps that keep storage and in-memory
// state tidy: retention, expiry, presence and hub cleanup.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

var errJobPanicked = errors.New("job panicked")

// JobFunc runs one pass of a job and returns how many items it touched
type JobFunc func(ctx context.Context) (int, error)

// Job is a named periodic task. Jobs must be idempotent: a failed pass is
// logged and the next tick simply runs it again.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Result is the outcome of a single job pass. Error is a short category; the
// underlying error only goes to the log.
type Result struct {
	Name     string        `json:"name"`
	Affected int           `json:"affected"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Scheduler runs jobs on their own tickers until stopped
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// runMu serialises passes of the same job between tickers and RunOnce
	runMu sync.Map
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With(slog.String("component", "maintenance"))}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return errors.New("job interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return errors.New("duplicate job name: " + job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered job names in registration order
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start launches one goroutine per job. It returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("maintenance scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels every job loop and waits for in-flight passes to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, job)
		}
	}
}

// RunOnce runs every job once, in registration order, and reports each outcome
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, s.run(ctx, job))
	}
	return results
}

func (s *Scheduler) run(ctx context.Context, job Job) Result {
	lock, _ := s.runMu.LoadOrStore(job.Name, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	n, err := s.safeRun(ctx, job)
	result := Result{Name: job.Name, Affected: n, Duration: time.Since(start)}

	if err != nil {
		result.Error = classify(err)
		s.logger.Error("maintenance job failed",
			slog.String("job", job.Name),
			slog.Any("error", err))
		return result
	}
	if n > 0 {
		s.logger.Info("maintenance job ran",
			slog.String("job", job.Name),
			slog.Int("affected", n),
			slog.Duration("duration", result.Duration))
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errJobPanicked
			s.logger.Error("maintenance job panic",
				slog.String("job", job.Name),
				slog.Any("panic", r))
		}
	}()
	return job.Run(ctx)
}

func classify(err error) string {
	switch {
	case errors.Is(err, errJobPanicked):
		return "job panicked"
	case errors.Is(err, storage.ErrUnavailable):
		return "storage unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "job failed"
	}
}
