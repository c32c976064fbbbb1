// Package scheduler runs Bookline's periodic maintenance jobs, such as
// requeueing outbox notifications stuck mid-send.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler with a standard 5-field
// parser and panic recovery around jobs.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddMaintenanceJob schedules a named task and logs each run's outcome. The
// task reports how many records it touched.
func (s *Scheduler) AddMaintenanceJob(name, expr string, task func() (int, error)) error {
	return s.AddJob(expr, func() {
		n, err := task()
		if err != nil {
			slog.Error("Scheduler: maintenance job failed", "job", name, "error", err)
			return
		}
		if n > 0 {
			slog.Info("Scheduler: maintenance job completed", "job", name, "touched", n)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
