package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"media-compressor/internal/logging"
)

// Scheduler starts full runs on a cron expression.
type Scheduler struct {
	mu      sync.RWMutex
	c       *cron.Cron
	entryID cron.EntryID
	expr    string
}

// NewScheduler creates a stopped Scheduler. Call Start to activate it.
func NewScheduler() *Scheduler {
	return &Scheduler{c: cron.New()}
}

// SetSchedule replaces the scheduled job. An empty expression removes it.
func (s *Scheduler) SetSchedule(expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
	}
	s.expr = ""
	if expr == "" {
		return nil
	}

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	s.entryID = id
	s.expr = expr
	logging.Info("Scheduled runs: %s", expr)
	return nil
}

// ScheduleRuns schedules full runs of ctrl. A tick that finds the
// controller busy is skipped.
func (s *Scheduler) ScheduleRuns(expr string, ctrl *Controller) error {
	return s.SetSchedule(expr, func() {
		err := ctrl.StartRun(TriggerSchedule)
		if errors.Is(err, ErrBusy) {
			logging.Info("Scheduled run skipped: a run is already in progress")
		}
	})
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop. Running jobs are not waited for.
func (s *Scheduler) Stop() {
	s.c.Stop()
}

// NextRunAt returns the next scheduled time, or nil if nothing is
// scheduled or the scheduler is not started.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// Expr returns the current cron expression.
func (s *Scheduler) Expr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expr
}
