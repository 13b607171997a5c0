// Package invoker implements the check-permissions-and-call-tool pipeline:
// turning an assistant's tool-use blocks into admitted queue.Entry values,
// running schema and semantic validation, PreToolUse/PostToolUse hooks, and
// the permission check, before handing the entry to the Tool-Use Queue.
package invoker

import (
	"context"
	"fmt"

	"github.com/kestrelcode/kestrel/internal/hooks"
	"github.com/kestrelcode/kestrel/internal/message"
	"github.com/kestrelcode/kestrel/internal/permission"
	"github.com/kestrelcode/kestrel/internal/queue"
	"github.com/kestrelcode/kestrel/internal/tool"
	toolpermission "github.com/kestrelcode/kestrel/internal/tool/permission"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

// Pipeline admits assistant tool-use blocks into the queue, applying
// validation, hooks, and permission checks uniformly regardless of which
// concrete tool is named.
type Pipeline struct {
	Registry   Registry
	Permission permission.Checker
	Hooks      *hooks.Engine
	Cwd        string
}

// Registry is the subset of the tool registry the pipeline needs. The
// package-level tool.Get/tool.Set satisfy it.
type Registry interface {
	Get(name string) (tool.Tool, bool)
}

type registryFunc func(name string) (tool.Tool, bool)

func (f registryFunc) Get(name string) (tool.Tool, bool) { return f(name) }

// GlobalRegistry adapts the package-level tool registry to Registry.
func GlobalRegistry() Registry {
	return registryFunc(tool.Get)
}

// Admit turns one assistant turn's tool-use blocks into queue entries, in
// the order the assistant requested them. Every block is represented: a
// block that fails validation, is blocked by a hook, or is denied
// permission becomes a pre-completed error entry rather than being
// dropped, so ordering and visibility to the assistant are preserved.
func (p *Pipeline) Admit(ctx context.Context, calls []message.ToolCall) []*queue.Entry {
	entries := make([]*queue.Entry, 0, len(calls))
	for _, tc := range calls {
		entries = append(entries, p.admitOne(ctx, tc))
	}
	return entries
}

func (p *Pipeline) admitOne(ctx context.Context, tc message.ToolCall) *queue.Entry {
	params, err := message.ParseToolInput(tc.Input)
	if err != nil {
		return queue.NewErrorEntry(tc, fmt.Sprintf("Error parsing tool input: %v", err))
	}

	t, ok := p.Registry.Get(tc.Name)
	if !ok {
		return queue.NewErrorEntry(tc, fmt.Sprintf("Unknown tool: %s", tc.Name))
	}

	askUser := false
	forceAllow := false
	if p.Hooks != nil {
		outcome := p.Hooks.Execute(ctx, hooks.PreToolUse, hooks.HookInput{
			ToolName:  tc.Name,
			ToolInput: params,
			ToolUseID: tc.ID,
		})
		if outcome.ShouldBlock {
			return queue.NewErrorEntry(tc, "Blocked by hook: "+outcome.BlockReason)
		}
		if outcome.UpdatedInput != nil {
			params = outcome.UpdatedInput
		}
		askUser = outcome.AskUser
		forceAllow = outcome.ForceAllow
	}

	if err := tool.ValidateInput(ctx, t, params, p.Cwd); err != nil {
		return queue.NewErrorEntry(tc, err.Error())
	}

	decision := permission.Permit
	if p.Permission != nil {
		decision = p.Permission.Check(tc.Name, params)
	}
	// A hook's permissionDecision:"allow" forces the tool through
	// regardless of what the rule-based checker decided, per spec §4.3
	// step 4 — it runs before the Reject short-circuit and the "ask"
	// escalation below, so it overrides both.
	if forceAllow {
		decision = permission.Permit
	}
	if decision == permission.Reject {
		return queue.NewErrorEntry(tc, fmt.Sprintf("Tool %s is not permitted in this mode", tc.Name))
	}
	// A hook's permissionDecision:"ask" forces the normal interactive
	// prompt even when the rule-based checker would have auto-permitted.
	if askUser && decision == permission.Permit && !forceAllow {
		decision = permission.Prompt
	}

	safe := tool.IsConcurrencySafe(t, params)
	wrapped := t
	if p.Hooks != nil {
		wrapped = postHookTool{Tool: t, tc: tc, params: params, hooks: p.Hooks, cwd: p.Cwd}
	}

	return queue.NewToolEntry(tc, wrapped, params, p.Cwd, safe)
}

// postHookTool decorates a tool so its PostToolUse hook fires once per
// terminal result, with the real tool's output visible to the hook as
// tool_response. Non-terminal progress events and every other tool
// behavior pass through unchanged.
type postHookTool struct {
	tool.Tool
	tc     message.ToolCall
	params map[string]any
	hooks  *hooks.Engine
	cwd    string
}

func (p postHookTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	result := p.Tool.Execute(ctx, params, cwd)
	p.runPostHook(ctx, result)
	return result
}

func (p postHookTool) RequiresPermission() bool {
	pat, ok := p.Tool.(tool.PermissionAwareTool)
	return ok && pat.RequiresPermission()
}

func (p postHookTool) PreparePermission(ctx context.Context, params map[string]any, cwd string) (*toolpermission.PermissionRequest, error) {
	pat := p.Tool.(tool.PermissionAwareTool)
	return pat.PreparePermission(ctx, params, cwd)
}

func (p postHookTool) ExecuteApproved(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	pat := p.Tool.(tool.PermissionAwareTool)
	result := pat.ExecuteApproved(ctx, params, cwd)
	p.runPostHook(ctx, result)
	return result
}

func (p postHookTool) Call(ctx context.Context, params map[string]any, cwd string) <-chan tool.Event {
	st, ok := p.Tool.(tool.StreamingTool)
	if !ok {
		return tool.Call(ctx, p.Tool, params, cwd)
	}

	in := st.Call(ctx, params, cwd)
	out := make(chan tool.Event, 1)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Kind == tool.EventResult {
				p.runPostHook(ctx, ev.Result)
			}
			out <- ev
		}
	}()
	return out
}

func (p postHookTool) IsConcurrencySafe(params map[string]any) bool {
	return tool.IsConcurrencySafe(p.Tool, params)
}

func (p postHookTool) ValidateInput(ctx context.Context, params map[string]any, cwd string) error {
	return tool.ValidateInput(ctx, p.Tool, params, cwd)
}

func (p postHookTool) runPostHook(ctx context.Context, result ui.ToolResult) {
	event := hooks.PostToolUse
	if !result.Success {
		event = hooks.PostToolUseFailure
	}
	p.hooks.Execute(ctx, event, hooks.HookInput{
		ToolName:     p.tc.Name,
		ToolInput:    p.params,
		ToolUseID:    p.tc.ID,
		ToolResponse: result.FormatForLLM(),
		Error:        result.Error,
	})
}
