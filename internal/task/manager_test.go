package task

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "echo", "test")
	cmd.Start()

	bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)

	if bt.ID == "" {
		t.Error("task ID should not be empty")
	}

	retrieved, ok := m.Get(bt.ID)
	if !ok {
		t.Error("should find created task")
	}
	if retrieved.GetID() != bt.ID {
		t.Error("retrieved task should match created task")
	}
}

func TestManager_GetNotFound(t *testing.T) {
	m := NewManager()

	_, ok := m.Get("nonexistent")
	if ok {
		t.Error("should not find nonexistent task")
	}
}

func TestManager_List(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		cmd := exec.CommandContext(ctx, "echo", "test")
		cmd.Start()
		m.Create(cmd, "echo test", "Test task", ctx, cancel)
	}

	tasks := m.List()
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}
}

func TestManager_ListRunning(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tasks []*BashTask
	for i := 0; i < 3; i++ {
		cmd := exec.CommandContext(ctx, "echo", "test")
		cmd.Start()
		bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)
		tasks = append(tasks, bt)
	}

	tasks[0].Complete(0, nil)

	running := m.ListRunning()
	if len(running) != 2 {
		t.Errorf("expected 2 running tasks, got %d", len(running))
	}
}

func TestManager_Remove(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "echo", "test")
	cmd.Start()

	bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)
	taskID := bt.ID

	m.Remove(taskID)

	_, ok := m.Get(taskID)
	if ok {
		t.Error("task should be removed")
	}
}

func TestManager_Cleanup(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "echo", "test")
	cmd.Start()

	bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)
	bt.Complete(0, nil)

	bt.mu.Lock()
	bt.EndTime = time.Now().Add(-2 * time.Hour)
	bt.mu.Unlock()

	m.Cleanup(time.Hour)

	_, ok := m.Get(bt.ID)
	if ok {
		t.Error("old completed task should be cleaned up")
	}
}

func TestManager_CleanupKeepsRecent(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "echo", "test")
	cmd.Start()

	bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)
	bt.Complete(0, nil)

	m.Cleanup(time.Hour)

	_, ok := m.Get(bt.ID)
	if !ok {
		t.Error("recently completed task should not be cleaned up")
	}
}

func TestManager_CleanupKeepsRunning(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "echo", "test")
	cmd.Start()

	bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)

	m.Cleanup(0)

	_, ok := m.Get(bt.ID)
	if !ok {
		t.Error("running task should not be cleaned up")
	}
}

func TestManager_GenerateUniqueIDs(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		cmd := exec.CommandContext(ctx, "echo", "test")
		cmd.Start()
		bt := m.Create(cmd, "echo test", "Test task", ctx, cancel)

		if ids[bt.ID] {
			t.Errorf("duplicate ID generated: %s", bt.ID)
		}
		ids[bt.ID] = true
	}
}

func TestManager_RegisterTask(t *testing.T) {
	m := NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	at := NewAgentTask(GenerateID(), "Explore", "subagent task", ctx, cancel)
	m.RegisterTask(at)

	retrieved, ok := m.Get(at.ID)
	if !ok {
		t.Fatal("should find registered agent task")
	}
	if retrieved.GetType() != TaskTypeAgent {
		t.Errorf("expected agent task type, got %s", retrieved.GetType())
	}
}

func TestGenerateID_Format(t *testing.T) {
	id := GenerateID()
	if len(id) != 7 || id[0] != 'b' {
		t.Errorf("expected id of form 'b'+6 hex chars, got %q", id)
	}
}
