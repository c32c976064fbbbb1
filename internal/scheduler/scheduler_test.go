package scheduler

import (
	"errors"
	"testing"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestSchedulerAddMaintenanceJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddMaintenanceJob("outbox-recovery", "*/5 * * * *", func() (int, error) {
		return 0, nil
	}); err != nil {
		t.Errorf("expected no error adding maintenance job, got %v", err)
	}
	if err := s.AddMaintenanceJob("bad", "bad expr", func() (int, error) {
		return 0, errors.New("never runs")
	}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
