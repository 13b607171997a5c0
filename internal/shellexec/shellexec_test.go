package shellexec

import (
	"context"
	"testing"
	"time"
)

func TestStart_Success(t *testing.T) {
	e, err := Start(context.Background(), Options{Command: "echo hello"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	result, err := e.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Output != "hello" {
		t.Errorf("expected output 'hello', got %q", result.Output)
	}
	if result.Interrupted {
		t.Error("expected Interrupted=false")
	}
}

func TestStart_NonZeroExit(t *testing.T) {
	e, err := Start(context.Background(), Options{Command: "exit 7"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	result, err := e.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if result.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", result.ExitCode)
	}
}

func TestStart_CombinesStdoutAndStderr(t *testing.T) {
	e, err := Start(context.Background(), Options{Command: "echo out; echo err 1>&2"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	result, err := e.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if result.Output != "out\nerr" {
		t.Errorf("expected combined 'out\\nerr', got %q", result.Output)
	}
}

func TestStart_Timeout(t *testing.T) {
	e, err := Start(context.Background(), Options{
		Command: "sleep 5",
		Timeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	result, err := e.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if !result.Interrupted {
		t.Error("expected Interrupted=true on timeout")
	}
	if result.ExitCode != 143 {
		t.Errorf("expected exit code 143 on timeout, got %d", result.ExitCode)
	}
}

func TestStart_OnTimeoutPromotes(t *testing.T) {
	promoted := make(chan struct{})
	e, err := Start(context.Background(), Options{
		Command: "sleep 5",
		Timeout: 20 * time.Millisecond,
		OnTimeout: func(exec *Exec) {
			exec.Promote()
			close(promoted)
		},
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-promoted:
	case <-time.After(2 * time.Second):
		t.Fatal("OnTimeout was never called")
	}

	if e.Status() != StatusBackgrounded {
		t.Errorf("expected status %q, got %q", StatusBackgrounded, e.Status())
	}

	e.Kill() // should be a no-op once promoted
	if e.Status() != StatusBackgrounded {
		t.Errorf("Kill() after Promote() should not change status, got %q", e.Status())
	}
}

func TestExec_Kill(t *testing.T) {
	e, err := Start(context.Background(), Options{Command: "sleep 5"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	e.Kill()

	result, err := e.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if !result.Interrupted {
		t.Error("expected Interrupted=true after Kill()")
	}
}

func TestExec_PID(t *testing.T) {
	e, err := Start(context.Background(), Options{Command: "echo hi"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if e.PID() == 0 {
		t.Error("expected a non-zero PID for a started process")
	}
	e.Wait(context.Background())
}
