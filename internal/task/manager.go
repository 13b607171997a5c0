package task

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Manager tracks every background task for the lifetime of the process,
// regardless of which turn spawned it. Bash tasks and agent tasks share one
// table so TaskOutput/TaskStop/KillShell never need to know which kind of
// task an id names.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]BackgroundTask
}

// DefaultManager is the global, process-wide task manager. It is created
// lazily by virtue of package init and torn down only at process exit.
var DefaultManager = NewManager()

// NewManager creates a new task manager.
func NewManager() *Manager {
	return &Manager{
		tasks: make(map[string]BackgroundTask),
	}
}

// GenerateID returns a short opaque background-task id: "b" followed by 6
// lowercase hex characters. Collisions are not retried; 2^24 ids is enough
// headroom for one process's lifetime.
func GenerateID() string {
	b := make([]byte, 3)
	rand.Read(b)
	return "b" + hex.EncodeToString(b)
}

// Create starts tracking a freshly spawned bash background task and
// registers it under a new id.
func (m *Manager) Create(cmd *exec.Cmd, command, description string, ctx context.Context, cancel context.CancelFunc) *BashTask {
	t := NewBashTask(GenerateID(), command, description, cmd, ctx, cancel)

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	return t
}

// RegisterTask tracks a task that was constructed elsewhere (agent tasks,
// which need their id before the goroutine that runs them starts).
func (m *Manager) RegisterTask(t BackgroundTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.GetID()] = t
}

// Get retrieves a task by id.
func (m *Manager) Get(id string) (BackgroundTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// List returns every tracked task.
func (m *Manager) List() []BackgroundTask {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]BackgroundTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// ListRunning returns every tracked task still running.
func (m *Manager) ListRunning() []BackgroundTask {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]BackgroundTask, 0)
	for _, t := range m.tasks {
		if t.IsRunning() {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// Kill stops a task by id: Stop() first for a graceful exit, escalating to
// Kill() if it hasn't exited within the grace period.
func (m *Manager) Kill(id string) error {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	if !t.IsRunning() {
		return fmt.Errorf("task already completed: %s", id)
	}

	if err := t.Stop(); err != nil {
		return err
	}

	if t.WaitForCompletion(2 * time.Second) {
		return nil
	}

	return t.Kill()
}

// ReadBackground advances id's read cursor and returns everything appended
// since the last read, optionally keeping only lines matching filter
// (spec §4.4's `readBackground(id, {filter?})`).
func (m *Manager) ReadBackground(id, filter string) (string, error) {
	t, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("task not found: %s", id)
	}
	return t.ReadIncremental(filter)
}

// BashNotification describes one finished background shell, flushed into
// the next turn's history exactly once.
type BashNotification struct {
	ID     string
	Status TaskStatus
	Output string
}

// FlushBashNotifications returns, and marks as reported, every finished
// bash background task that has not yet been reported. Called once per
// turn from the Turn Loop (spec §4.1 step 3); agent tasks surface their
// completion through TaskOutput instead and are not included here.
func (m *Manager) FlushBashNotifications() []BashNotification {
	m.mu.RLock()
	tasks := make([]BackgroundTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	var out []BashNotification
	for _, t := range tasks {
		bt, ok := t.(*BashTask)
		if !ok || bt.IsRunning() {
			continue
		}
		if !bt.MarkNotified() {
			continue
		}
		info := bt.GetStatus()
		out = append(out, BashNotification{ID: info.ID, Status: info.Status, Output: info.Output})
	}
	return out
}

// Remove drops a task from the table, regardless of its status.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// Cleanup removes completed tasks whose end time is older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, t := range m.tasks {
		info := t.GetStatus()
		if !t.IsRunning() && !info.EndTime.IsZero() && now.Sub(info.EndTime) > maxAge {
			delete(m.tasks, id)
		}
	}
}
