package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kestrelcode/kestrel/internal/proxy"
	"github.com/kestrelcode/kestrel/internal/sandbox"
	"github.com/kestrelcode/kestrel/internal/shellexec"
	"github.com/kestrelcode/kestrel/internal/task"
	"github.com/kestrelcode/kestrel/internal/tool/permission"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

const (
	IconBash = "$"
)

// BashTool executes shell commands
type BashTool struct{}

func (t *BashTool) Name() string        { return "Bash" }
func (t *BashTool) Description() string { return "Execute shell commands" }
func (t *BashTool) Icon() string        { return IconBash }

// RequiresPermission returns true - Bash always requires permission
func (t *BashTool) RequiresPermission() bool {
	return true
}

// maxTimeoutMs is the upper bound a caller may request for a foreground
// command; anything beyond it is rejected before the command ever runs.
const maxTimeoutMs = 600000

// ValidateInput rejects a requested timeout above the maximum the executor
// will honor, per spec §8 scenario 6.
func (t *BashTool) ValidateInput(ctx context.Context, params map[string]any, cwd string) error {
	if timeoutMs, ok := params["timeout"].(float64); ok && timeoutMs > maxTimeoutMs {
		return &ToolError{Message: fmt.Sprintf("Maximum allowed timeout is %dms, got %v", maxTimeoutMs, timeoutMs)}
	}
	return nil
}

// denyUnknownHosts is the Proxy Gateway's permission callback for hosts not
// already resolved by a static allow/deny rule. BashTool has no interactive
// prompt surface of its own at this layer, so an unclassified host is
// refused rather than silently allowed; an operator who wants a host
// reachable adds it to network.allowedDomains.
func denyUnknownHosts(ctx context.Context, host string) (proxy.Decision, error) {
	return proxy.Decision{Allow: false, Message: "host not in network.allowedDomains"}, nil
}

// sandboxArgv wraps argv with the Sandbox Profile Builder when settings ask
// for this command to be sandboxed. It returns the original argv unchanged
// when sandboxing isn't requested, and a non-nil error only when sandboxing
// is both required and unavailable (never a silent fallback, per spec
// §4.4/§7).
func sandboxArgv(cwd, command string, argv []string) ([]string, map[string]string, error) {
	profile, required, env := resolveSandboxProfile(cwd, command, denyUnknownHosts)
	if profile == nil {
		return argv, nil, nil
	}

	wrapped, err := sandbox.BuildCommand(profile, argv)
	if err != nil {
		if required {
			return nil, nil, fmt.Errorf("sandbox required but unavailable: %w", err)
		}
		return argv, nil, nil
	}
	return wrapped, env, nil
}

// applyProxyEnv appends env's HTTP_PROXY/ALL_PROXY/NO_PROXY family on top
// of the process's own environment for a sandboxed command.
func applyProxyEnv(cmd *exec.Cmd, env map[string]string) {
	if len(env) == 0 {
		return
	}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
}

// PreparePermission prepares a permission request with command preview
func (t *BashTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.PermissionRequest, error) {
	command, ok := params["command"].(string)
	if !ok || command == "" {
		return nil, &ToolError{Message: "command is required"}
	}

	description, _ := params["description"].(string)
	runBackground, _ := params["run_in_background"].(bool)

	// Count lines in command
	lineCount := strings.Count(command, "\n") + 1

	return &permission.PermissionRequest{
		ID:          generateRequestID(),
		ToolName:    t.Name(),
		Description: description,
		BashMeta: &permission.BashMetadata{
			Command:       command,
			Description:   description,
			RunBackground: runBackground,
			LineCount:     lineCount,
		},
	}, nil
}

// ExecuteApproved executes the command after user approval
func (t *BashTool) ExecuteApproved(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	start := time.Now()

	command, _ := params["command"].(string)
	description, _ := params["description"].(string)
	runBackground, _ := params["run_in_background"].(bool)

	// Get timeout (default 120 seconds, max 600 seconds)
	timeout := 120 * time.Second
	if timeoutMs, ok := params["timeout"].(float64); ok && timeoutMs > 0 {
		timeout = min(time.Duration(timeoutMs)*time.Millisecond, 600*time.Second)
	}

	// Handle background execution
	if runBackground {
		return t.executeBackground(ctx, command, description, cwd, timeout)
	}

	profile, required, proxyEnv := resolveSandboxProfile(cwd, command, denyUnknownHosts)

	e, err := shellexec.Start(ctx, shellexec.Options{
		Command:         command,
		Dir:             cwd,
		Timeout:         timeout,
		Sandbox:         profile,
		SandboxRequired: required,
		Env:             proxyEnv,
	})
	if err != nil {
		return ui.ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: ui.ResultMetadata{
				Title:    t.Name(),
				Icon:     t.Icon(),
				Subtitle: "Sandbox unavailable",
			},
		}
	}

	result, err := e.Wait(ctx)
	duration := time.Since(start)
	if err != nil {
		return ui.ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: ui.ResultMetadata{
				Title:    t.Name(),
				Icon:     t.Icon(),
				Subtitle: "Interrupted",
				Duration: duration,
			},
		}
	}

	fullOutput := result.Output

	// Count lines
	lineCount := 0
	if fullOutput != "" {
		lineCount = strings.Count(strings.TrimSuffix(fullOutput, "\n"), "\n") + 1
	}

	// Truncate if too long
	const maxLen = 30000
	truncated := false
	if len(fullOutput) > maxLen {
		fullOutput = fullOutput[:maxLen] + "\n... (output truncated)"
		truncated = true
	}

	if result.Interrupted {
		return ui.ToolResult{
			Success: false,
			Output:  fullOutput,
			Error:   "command timed out after " + timeout.String(),
			Metadata: ui.ResultMetadata{
				Title:     t.Name(),
				Icon:      t.Icon(),
				Subtitle:  "Timeout",
				LineCount: lineCount,
				Duration:  duration,
			},
		}
	}

	if result.ExitCode != 0 {
		errorMsg := fmt.Sprintf("exit code %d", result.ExitCode)
		return ui.ToolResult{
			Success: false,
			Output:  fullOutput,
			Error:   errorMsg,
			Metadata: ui.ResultMetadata{
				Title:     t.Name(),
				Icon:      t.Icon(),
				Subtitle:  "Failed: " + errorMsg,
				LineCount: lineCount,
				Duration:  duration,
			},
		}
	}

	// Build subtitle
	subtitle := "Done"
	if description != "" {
		subtitle = description
	} else if truncated {
		subtitle = fmt.Sprintf("%d+ lines (truncated)", lineCount)
	} else if lineCount > 1 {
		subtitle = fmt.Sprintf("%d lines", lineCount)
	} else if fullOutput != "" {
		// Show first line preview for single-line output
		firstLine := strings.TrimSpace(strings.Split(fullOutput, "\n")[0])
		if len(firstLine) > 50 {
			firstLine = firstLine[:50] + "..."
		}
		if firstLine != "" {
			subtitle = firstLine
		}
	}

	return ui.ToolResult{
		Success: true,
		Output:  fullOutput,
		Metadata: ui.ResultMetadata{
			Title:     t.Name(),
			Icon:      t.Icon(),
			Subtitle:  subtitle,
			LineCount: lineCount,
			Duration:  duration,
		},
	}
}

// Execute implements the Tool interface (for permission-unaware execution)
func (t *BashTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	// This will be called if permission flow is bypassed
	return t.ExecuteApproved(ctx, params, cwd)
}

// executeBackground runs the command in the background and returns immediately
func (t *BashTool) executeBackground(ctx context.Context, command, description, cwd string, timeout time.Duration) ui.ToolResult {
	argv, proxyEnv, err := sandboxArgv(cwd, command, []string{"/bin/sh", "-c", command})
	if err != nil {
		return ui.ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: ui.ResultMetadata{
				Title:    t.Name(),
				Icon:     t.Icon(),
				Subtitle: "Sandbox unavailable",
			},
		}
	}

	// Create context with timeout for background task
	taskCtx, cancel := context.WithTimeout(context.Background(), timeout)

	// Create command
	cmd := exec.CommandContext(taskCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	applyProxyEnv(cmd, proxyEnv)

	// Set process group so we can kill all child processes
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Set up pipes for stdout and stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return ui.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("failed to create stdout pipe: %v", err),
			Metadata: ui.ResultMetadata{
				Title: t.Name(),
				Icon:  t.Icon(),
			},
		}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return ui.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("failed to create stderr pipe: %v", err),
			Metadata: ui.ResultMetadata{
				Title: t.Name(),
				Icon:  t.Icon(),
			},
		}
	}

	// Start the command
	if err := cmd.Start(); err != nil {
		cancel()
		return ui.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("failed to start command: %v", err),
			Metadata: ui.ResultMetadata{
				Title: t.Name(),
				Icon:  t.Icon(),
			},
		}
	}

	// Register with task manager
	bgTask := task.DefaultManager.Create(cmd, command, description, taskCtx, cancel)

	// Promote immediately: mirror output into this process's task-output
	// directory so TaskOutput can resume reads incrementally.
	if dir, err := task.TaskOutputDir(fmt.Sprintf("pid-%d", os.Getpid())); err == nil {
		bgTask.Promote(dir)
	}

	// Start goroutine to collect output and wait for completion
	go func() {
		defer cancel()

		// Read stdout and stderr concurrently
		var stdoutBuf bytes.Buffer
		go func() {
			io.Copy(&stdoutBuf, stdout)
		}()

		var stderrBuf bytes.Buffer
		go func() {
			io.Copy(&stderrBuf, stderr)
		}()

		// Wait for command to complete
		err := cmd.Wait()

		// Combine output
		output := stdoutBuf.String()
		if stderrBuf.Len() > 0 {
			if output != "" {
				output += "\n"
			}
			output += stderrBuf.String()
		}
		bgTask.AppendOutput([]byte(output))

		// Get exit code
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
		}

		// Mark task as complete
		bgTask.Complete(exitCode, err)
	}()

	// Return immediately with task ID
	return ui.ToolResult{
		Success: true,
		Output:  fmt.Sprintf("Task started in background.\nTask ID: %s\nPID: %d\nCommand: %s", bgTask.ID, bgTask.PID, command),
		Metadata: ui.ResultMetadata{
			Title:    t.Name(),
			Icon:     t.Icon(),
			Subtitle: fmt.Sprintf("[background] %s", bgTask.ID),
		},
	}
}

func init() {
	Register(&BashTool{})
}
