package tool

import (
	"context"
	"sync"
	"time"
)

// Options carries the per-turn knobs a ToolUseContext exposes to tools and
// to the scheduling layers above them.
type Options struct {
	Toolset         []string // names enabled for this turn; empty means "all"
	SafeMode        bool     // plan mode / read-only enforcement
	Model           string
	PermissionMode  string // "normal", "acceptEdits", "plan", "bypassPermissions"
	MaxThinkingToks int
	LastUserPrompt  string
	PersistSession  bool
}

// Context is the ambient per-turn state threaded through the Queue and
// every Tool invocation (spec's ToolUseContext). It is owned by the Turn
// Loop and passed by reference; the only sanctioned mutation path is a
// ContextModifier returned by a tool's result event (see Event.Modifier).
type Context struct {
	Cancel  context.CancelFunc
	Done    <-chan struct{}
	Options Options
	AgentID string
	// MessageID is the id of the assistant message that produced the
	// tool-use blocks currently being serviced.
	MessageID string

	mu             sync.RWMutex
	lastReadFiles  map[string]time.Time
}

// NewContext creates a fresh per-turn Context bound to ctx's cancellation.
func NewContext(ctx context.Context, agentID string, opts Options) *Context {
	return &Context{
		Done:          ctx.Done(),
		Options:       opts,
		AgentID:       agentID,
		lastReadFiles: make(map[string]time.Time),
	}
}

// Clone returns a shallow copy sharing the same read-timestamp map, for
// handing to a subagent that should observe the parent's read history but
// have its own AgentID/MessageID.
func (c *Context) Clone(agentID string) *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Context{
		Cancel:        c.Cancel,
		Done:          c.Done,
		Options:       c.Options,
		AgentID:       agentID,
		lastReadFiles: c.lastReadFiles,
	}
}

// MarkRead records the mtime a Read tool observed for path, so a later
// Edit/Write can detect an external modification.
func (c *Context) MarkRead(path string, mtime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReadFiles[path] = mtime
}

// LastRead returns the mtime last observed for path by a Read tool, and
// whether path has been read at all this turn.
func (c *Context) LastRead(path string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastReadFiles[path]
	return t, ok
}

// IsCancelled reports whether this context's cancellation handle has fired.
func (c *Context) IsCancelled() bool {
	if c.Done == nil {
		return false
	}
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}
