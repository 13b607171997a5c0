package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelcode/kestrel/internal/message"
	"github.com/kestrelcode/kestrel/internal/tool"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

// fakeTool is a minimal tool.Tool/StreamingTool for exercising the
// scheduler without touching the filesystem or a shell.
type fakeTool struct {
	name     string
	safe     bool
	progress []string
	delay    time.Duration
	isError  bool
	started  chan struct{} // closed once Call begins, for synchronizing tests
	release  chan struct{} // Call blocks until this is closed, if non-nil
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "" }
func (f *fakeTool) Icon() string        { return "" }

func (f *fakeTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	return ui.ToolResult{Success: !f.isError, Output: "ok", Error: "boom"}
}

func (f *fakeTool) IsConcurrencySafe(params map[string]any) bool { return f.safe }

func (f *fakeTool) Call(ctx context.Context, params map[string]any, cwd string) <-chan tool.Event {
	out := make(chan tool.Event, len(f.progress)+1)
	if f.started != nil {
		close(f.started)
	}
	go func() {
		defer close(out)
		if f.release != nil {
			<-f.release
		}
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		for _, p := range f.progress {
			out <- tool.Event{Kind: tool.EventProgress, Progress: p}
		}
		out <- tool.Event{Kind: tool.EventResult, Result: f.Execute(ctx, params, cwd)}
	}()
	return out
}

func drain(t *testing.T, ch <-chan message.Message, timeout time.Duration) []message.Message {
	t.Helper()
	var out []message.Message
	deadline := time.After(timeout)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, m)
		case <-deadline:
			t.Fatal("timed out draining queue")
		}
	}
}

func newCtx() *tool.Context {
	return tool.NewContext(context.Background(), "agent", tool.Options{})
}

func TestTwoConcurrencySafeEntriesYieldInEnqueueOrder(t *testing.T) {
	t1 := &fakeTool{name: "t1", safe: true, progress: []string{"p1"}, delay: 30 * time.Millisecond}
	t2 := &fakeTool{name: "t2", safe: true, delay: 5 * time.Millisecond}

	tc1 := message.ToolCall{ID: "tc1", Name: "t1"}
	tc2 := message.ToolCall{ID: "tc2", Name: "t2"}

	q := NewBatch(newCtx(), []*Entry{
		NewToolEntry(tc1, t1, nil, "/tmp", true),
		NewToolEntry(tc2, t2, nil, "/tmp", true),
	})

	msgs := drain(t, q.Run(context.Background()), 2*time.Second)

	var order []string
	for _, m := range msgs {
		if m.ToolResult != nil {
			order = append(order, m.ToolResult.ToolCallID)
		}
	}
	if len(order) != 2 || order[0] != "tc1" || order[1] != "tc2" {
		t.Fatalf("expected results in enqueue order [tc1 tc2], got %v", order)
	}

	if !msgs[0].IsProgress() || msgs[0].Progress.Text != "p1" {
		t.Fatalf("expected t1's progress to be yielded before either result, got %+v", msgs[0])
	}
}

func TestExclusiveEntryBarsConcurrentEntries(t *testing.T) {
	var concurrent int32
	var mu sync.Mutex
	maxConcurrent := 0

	track := func(delta int32) {
		mu.Lock()
		defer mu.Unlock()
		concurrent += delta
		if int(concurrent) > maxConcurrent {
			maxConcurrent = int(concurrent)
		}
	}

	makeTool := func(name string, safe bool) *fakeTool {
		return &fakeTool{name: name, safe: safe, delay: 20 * time.Millisecond}
	}

	exclusive := makeTool("bash", false)
	safeA := makeTool("read-a", true)
	safeB := makeTool("read-b", true)

	wrap := func(ft *fakeTool) tool.StreamingTool {
		return trackingTool{ft, track}
	}

	entries := []*Entry{
		NewToolEntry(message.ToolCall{ID: "e1", Name: "bash"}, wrap(exclusive), nil, "/tmp", false),
		NewToolEntry(message.ToolCall{ID: "e2", Name: "read-a"}, wrap(safeA), nil, "/tmp", true),
		NewToolEntry(message.ToolCall{ID: "e3", Name: "read-b"}, wrap(safeB), nil, "/tmp", true),
	}

	q := NewBatch(newCtx(), entries)
	drain(t, q.Run(context.Background()), 2*time.Second)

	if maxConcurrent > 1 {
		t.Fatalf("exclusive entry should never run alongside another, observed %d concurrent", maxConcurrent)
	}
}

// trackingTool wraps a fakeTool to count concurrent executions.
type trackingTool struct {
	*fakeTool
	track func(int32)
}

func (w trackingTool) Call(ctx context.Context, params map[string]any, cwd string) <-chan tool.Event {
	w.track(1)
	out := make(chan tool.Event, 1)
	inner := w.fakeTool.Call(ctx, params, cwd)
	go func() {
		defer close(out)
		defer w.track(-1)
		for ev := range inner {
			out <- ev
		}
	}()
	return out
}

func TestCancellationDuringExecutionSynthesizesReject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})

	running := &fakeTool{name: "bash", safe: false, release: release, started: started}
	queued := &fakeTool{name: "read", safe: true}

	q := NewBatch(newCtx(), []*Entry{
		NewToolEntry(message.ToolCall{ID: "t1", Name: "bash"}, running, nil, "/tmp", false),
		NewToolEntry(message.ToolCall{ID: "t2", Name: "read"}, queued, nil, "/tmp", true),
	})

	ch := q.Run(ctx)

	<-started // t1 is executing
	cancel()
	close(release) // let t1's goroutine proceed, though the queue should already have rejected it

	msgs := drain(t, ch, 2*time.Second)

	results := map[string]message.ToolResult{}
	for _, m := range msgs {
		if m.ToolResult != nil {
			results[m.ToolResult.ToolCallID] = *m.ToolResult
		}
	}

	t1 := results["t1"]
	if !t1.IsError || t1.Content != message.RejectMessage {
		t.Fatalf("expected t1 to be rejected, got %+v", t1)
	}

	t2 := results["t2"]
	if !t2.IsError || t2.Content != message.SiblingErrorMessage {
		t.Fatalf("expected t2 to report a sibling error, got %+v", t2)
	}
}

func TestErrorEntryPreservesOrderWithoutRunning(t *testing.T) {
	entry := NewErrorEntry(message.ToolCall{ID: "bad", Name: "Nonexistent"}, "Unknown tool: Nonexistent")
	q := NewBatch(newCtx(), []*Entry{entry})

	msgs := drain(t, q.Run(context.Background()), time.Second)
	if len(msgs) != 1 || msgs[0].ToolResult == nil {
		t.Fatalf("expected exactly one tool result message, got %+v", msgs)
	}
	if !msgs[0].ToolResult.IsError || msgs[0].ToolResult.Content != "Unknown tool: Nonexistent" {
		t.Fatalf("unexpected result: %+v", msgs[0].ToolResult)
	}
}
