package tool

import (
	"context"

	"github.com/kestrelcode/kestrel/internal/message"
	toppermission "github.com/kestrelcode/kestrel/internal/permission"
	"github.com/kestrelcode/kestrel/internal/tool/permission"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

// EventKind distinguishes the two event shapes a tool's Call stream can
// produce: transient progress (never persisted) and the single terminating
// result.
type EventKind int

const (
	EventProgress EventKind = iota
	EventResult
)

// ContextModifier is a pure function applied to the ambient per-turn
// context at a well-defined point: immediately, if the tool that produced
// it ran exclusively (non-concurrency-safe), or at turn end in enqueue
// order, if the tool ran concurrently with siblings.
type ContextModifier func(ctx *Context) *Context

// Event is one element of a tool's lazy output sequence. A Call stream
// yields zero or more EventProgress events followed by exactly one
// EventResult event, then closes.
type Event struct {
	Kind     EventKind
	Progress string
	Result   ui.ToolResult

	// Modifier, when non-nil, is applied to the ambient ToolUseContext per
	// the rules above. Only meaningful on EventResult.
	Modifier ContextModifier

	// FollowUps are additional messages to emit right after the result
	// message (e.g. a tool that wants to attach a synthetic note).
	FollowUps []message.Message
}

// ConcurrencySafeTool is implemented by tools whose concurrency safety
// depends on the validated input rather than being a fixed property of the
// tool (e.g. Bash is safe only if it's a read-only invocation the caller
// has tagged as such). Tools that don't implement this are judged purely
// by their read-only status (see IsConcurrencySafe below).
type ConcurrencySafeTool interface {
	Tool
	IsConcurrencySafe(params map[string]any) bool
}

// InputValidator performs semantic validation beyond JSON-schema shape:
// file existence, read-timestamp freshness, timeout bounds, and the like.
// A non-nil error aborts the call with that message as an error tool-result.
type InputValidator interface {
	Tool
	ValidateInput(ctx context.Context, params map[string]any, cwd string) error
}

// StreamingTool is implemented by tools that want to emit progress events
// before their terminal result (Bash's foreground-timeout/backgrounding
// path, Task's subagent turn-by-turn progress). Tools that don't implement
// it are adapted by Call below: their Execute/ExecuteApproved result
// becomes the stream's single EventResult.
type StreamingTool interface {
	Tool
	Call(ctx context.Context, params map[string]any, cwd string) <-chan Event
}

// IsConcurrencySafe reports whether calling this tool with these params may
// run alongside other concurrency-safe invocations. Read-only tools are
// concurrency-safe by default; a tool may override via ConcurrencySafeTool.
func IsConcurrencySafe(t Tool, params map[string]any) bool {
	if cs, ok := t.(ConcurrencySafeTool); ok {
		return cs.IsConcurrencySafe(params)
	}
	return toppermission.IsReadOnlyTool(t.Name())
}

// ValidateInput runs a tool's semantic validation if it implements
// InputValidator; otherwise it is a no-op.
func ValidateInput(ctx context.Context, t Tool, params map[string]any, cwd string) error {
	if v, ok := t.(InputValidator); ok {
		return v.ValidateInput(ctx, params, cwd)
	}
	return nil
}

// Call drives a tool's output as a lazy sequence of Events, regardless of
// whether the tool implements StreamingTool natively. Non-streaming tools
// are adapted: their synchronous Execute (or ExecuteApproved, for
// permission-aware tools once approval has already been granted by the
// invoker) becomes the one EventResult on the returned channel, which is
// then closed.
func Call(ctx context.Context, t Tool, params map[string]any, cwd string) <-chan Event {
	if st, ok := t.(StreamingTool); ok {
		return st.Call(ctx, params, cwd)
	}

	out := make(chan Event, 1)
	go func() {
		defer close(out)

		var result ui.ToolResult
		if pat, ok := t.(PermissionAwareTool); ok && pat.RequiresPermission() {
			result = pat.ExecuteApproved(ctx, params, cwd)
		} else {
			result = t.Execute(ctx, params, cwd)
		}
		out <- Event{Kind: EventResult, Result: result}
	}()
	return out
}

// PermissionRequestOf prepares a permission request for a tool that needs
// one, returning (nil, nil) for tools that don't require permission.
func PermissionRequestOf(ctx context.Context, t Tool, params map[string]any, cwd string) (*permission.PermissionRequest, error) {
	pat, ok := t.(PermissionAwareTool)
	if !ok || !pat.RequiresPermission() {
		return nil, nil
	}
	return pat.PreparePermission(ctx, params, cwd)
}
