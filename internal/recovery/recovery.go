// Package recovery orchestrates startup recovery so Bookline handles
// restarts gracefully. Components register tasks that repair durable state
// left behind by a crash, such as outbox messages stuck mid-send.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Task is one unit of startup recovery. Recover returns how many records
// it repaired.
type Task interface {
	Name() string
	Recover(ctx context.Context) (int, error)
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

func (t funcTask) Name() string { return t.name }

func (t funcTask) Recover(ctx context.Context) (int, error) { return t.fn(ctx) }

// TaskFunc wraps a function as a named recovery task.
func TaskFunc(name string, fn func(ctx context.Context) (int, error)) Task {
	return funcTask{name: name, fn: fn}
}

// Manager runs all registered recovery tasks at startup.
type Manager struct {
	tasks []Task
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{tasks: make([]Task, 0)}
}

// Register adds a task to run during RecoverAll.
func (m *Manager) Register(t Task) {
	m.tasks = append(m.tasks, t)
}

// RecoverAll runs every registered task in registration order. A failing
// task is logged and counted but does not stop the remaining tasks.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting application recovery", "tasks", len(m.tasks))

	recovered := 0
	errorCount := 0

	for _, task := range m.tasks {
		n, err := task.Recover(ctx)
		if err != nil {
			slog.Error("Recovery task failed", "error", err, "task", task.Name())
			errorCount++
			continue
		}
		slog.Debug("Recovery task completed", "task", task.Name(), "repaired", n)
		recovered += n
	}

	slog.Info("Application recovery completed", "repaired", recovered, "errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d tasks", errorCount, len(m.tasks))
	}

	return nil
}
