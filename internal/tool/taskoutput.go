package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelcode/kestrel/internal/task"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

const (
	IconTaskOutput = ">"
)

// TaskOutputTool retrieves output from background tasks, whether a
// background shell (BashTask) or a background subagent (AgentTask).
type TaskOutputTool struct{}

func (t *TaskOutputTool) Name() string        { return "TaskOutput" }
func (t *TaskOutputTool) Description() string { return "Retrieve output from a background task" }
func (t *TaskOutputTool) Icon() string        { return IconTaskOutput }

// Execute retrieves task output
func (t *TaskOutputTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	taskID, ok := params["task_id"].(string)
	if !ok || taskID == "" {
		return ui.ToolResult{
			Success: false,
			Error:   "task_id is required",
			Metadata: ui.ResultMetadata{
				Title: t.Name(),
				Icon:  t.Icon(),
			},
		}
	}

	// Get block parameter (default true)
	block := true
	if b, ok := params["block"].(bool); ok {
		block = b
	}

	// Get timeout (default 30 seconds, max 600 seconds)
	timeout := 30 * time.Second
	if timeoutMs, ok := params["timeout"].(float64); ok && timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
		if timeout > 600*time.Second {
			timeout = 600 * time.Second
		}
	}

	// Get task
	bgTask, found := task.DefaultManager.Get(taskID)
	if !found {
		return ui.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("task not found: %s", taskID),
			Metadata: ui.ResultMetadata{
				Title: t.Name(),
				Icon:  t.Icon(),
			},
		}
	}

	// If blocking, wait for completion
	stillRunning := false
	if block && bgTask.IsRunning() {
		if !bgTask.WaitForCompletion(timeout) {
			stillRunning = true
		}
	} else if bgTask.IsRunning() {
		stillRunning = true
	}

	info := bgTask.GetStatus()
	duration := time.Since(start)

	if info.Type == task.TaskTypeAgent {
		return t.formatAgentResult(info, stillRunning, duration)
	}
	return t.formatBashResult(info, stillRunning, duration)
}

func (t *TaskOutputTool) formatAgentResult(info task.TaskInfo, stillRunning bool, duration time.Duration) ui.ToolResult {
	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", info.ID)
	fmt.Fprintf(&b, "Agent: %s\n", info.AgentName)

	statusStr := string(info.Status)
	if stillRunning {
		statusStr = "still running"
	}
	fmt.Fprintf(&b, "Status: %s\n", statusStr)
	fmt.Fprintf(&b, "Turns: %d\n", info.TurnCount)
	fmt.Fprintf(&b, "Tokens: %d\n", info.TokenUsage)

	if info.Output != "" {
		fmt.Fprintf(&b, "\nOutput so far:\n%s\n", info.Output)
	}
	if info.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", info.Error)
	}

	if stillRunning {
		b.WriteString("\nOptions:\n")
		b.WriteString("- Call TaskOutput again to check for more progress\n")
		b.WriteString("- Call TaskStop to cancel this task\n")
	}

	return ui.ToolResult{
		Success: stillRunning || info.Status != task.StatusFailed,
		Output:  b.String(),
		Metadata: ui.ResultMetadata{
			Title:    t.Name(),
			Icon:     t.Icon(),
			Subtitle: fmt.Sprintf("%s: %s", info.ID, statusStr),
			Duration: duration,
		},
	}
}

func (t *TaskOutputTool) formatBashResult(info task.TaskInfo, stillRunning bool, duration time.Duration) ui.ToolResult {
	if stillRunning {
		return ui.ToolResult{
			Success: false,
			Output:  info.Output,
			Error:   fmt.Sprintf("timeout waiting for task (task still running, PID: %d)", info.PID),
			Metadata: ui.ResultMetadata{
				Title:    t.Name(),
				Icon:     t.Icon(),
				Subtitle: fmt.Sprintf("Timeout: %s", info.ID),
				Duration: duration,
			},
		}
	}

	var statusStr string
	switch info.Status {
	case task.StatusRunning:
		statusStr = "running"
	case task.StatusCompleted:
		statusStr = "completed"
	case task.StatusFailed:
		statusStr = fmt.Sprintf("failed (exit code: %d)", info.ExitCode)
	case task.StatusKilled:
		statusStr = "killed"
	}

	output := fmt.Sprintf("Task ID: %s\nStatus: %s\nPID: %d\n", info.ID, statusStr, info.PID)
	if info.Command != "" {
		output += fmt.Sprintf("Command: %s\n", info.Command)
	}
	if !info.EndTime.IsZero() {
		output += fmt.Sprintf("Duration: %v\n", info.EndTime.Sub(info.StartTime))
	}
	if info.Output != "" {
		output += fmt.Sprintf("\nOutput:\n%s", info.Output)
	}
	if info.Error != "" {
		output += fmt.Sprintf("\nError: %s", info.Error)
	}

	return ui.ToolResult{
		Success: info.Status != task.StatusFailed,
		Output:  output,
		Metadata: ui.ResultMetadata{
			Title:    t.Name(),
			Icon:     t.Icon(),
			Subtitle: fmt.Sprintf("%s: %s", info.ID, statusStr),
			Duration: duration,
		},
	}
}

func init() {
	Register(&TaskOutputTool{})
}
