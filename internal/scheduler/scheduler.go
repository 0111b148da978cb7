// Package scheduler drives the periodic monitoring work on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davido182/depositdigest/pkg/logger"
)

// Default intervals of the monitoring tasks
const (
	HealthCheckInterval      = 5 * time.Minute
	PerformanceSweepInterval = time.Minute
	ErrorSweepInterval       = 2 * time.Minute
	ResourceSweepInterval    = 5 * time.Minute
	CleanupInterval          = time.Hour
)

// Task is a named unit of periodic work
type Task struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the task once immediately when the scheduler starts
	RunOnStart bool
	Run        func(ctx context.Context)
}

type taskState struct {
	Task
	busy  sync.Mutex
	runs  int
	last  time.Time
	fails int
}

// TaskStatus reports how often a task has run
type TaskStatus struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int           `json:"runs"`
	Panics   int           `json:"panics"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
}

// Scheduler owns one ticker per task. Start is idempotent and Stop cancels
// every ticker and waits for in-flight runs to return.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*taskState
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logger.FieldLogger
}

// New creates a stopped scheduler
func New() *Scheduler {
	return &Scheduler{log: logger.ForComponent("scheduler")}
}

// Register adds a task; tasks registered while running start on the next Start
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive", t.Name)
	}
	if t.Run == nil {
		return fmt.Errorf("task %q: run function is required", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.Name == t.Name {
			return fmt.Errorf("task %q already registered", t.Name)
		}
	}
	s.tasks = append(s.tasks, &taskState{Task: t})
	return nil
}

// Start launches one goroutine per task. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("Scheduler already running", nil)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}

	s.log.Info("Scheduler started", map[string]interface{}{"tasks": len(s.tasks)})
}

// Stop cancels all tasks and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Scheduler stopped", nil)
}

// Running reports whether Start has been called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns per-task run counters in registration order
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := TaskStatus{Name: t.Name, Interval: t.Interval, Runs: t.runs, Panics: t.fails}
		if !t.last.IsZero() {
			last := t.last
			st.LastRun = &last
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, t *taskState) {
	defer s.wg.Done()

	if t.RunOnStart {
		s.runOnce(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// runOnce skips the tick when the previous run of the same task is still busy
func (s *Scheduler) runOnce(ctx context.Context, t *taskState) {
	if ctx.Err() != nil {
		return
	}
	if !t.busy.TryLock() {
		s.log.Warn("Task still running, skipping this cycle", map[string]interface{}{"task": t.Name})
		return
	}
	defer t.busy.Unlock()

	defer func() {
		s.mu.Lock()
		t.runs++
		t.last = time.Now()
		s.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			t.fails++
			s.mu.Unlock()
			s.log.Error("Task panicked", fmt.Errorf("%v", r), map[string]interface{}{"task": t.Name})
		}
	}()

	t.Run(ctx)
}
