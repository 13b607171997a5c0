package queue

import (
	"context"
	"sync"

	"github.com/kestrelcode/kestrel/internal/message"
	"github.com/kestrelcode/kestrel/internal/tool"
	"github.com/kestrelcode/kestrel/internal/tool/ui"
)

// NewToolEntry builds a queued Entry for a tool-use block that has passed
// admission (schema + semantic validation, permission check) and is ready
// to run once the scheduler admits it.
func NewToolEntry(tc message.ToolCall, t tool.Tool, params map[string]any, cwd string, safe bool) *Entry {
	return newEntry(tc, t, params, cwd, safe)
}

// NewErrorEntry builds an Entry that is already completed with an error
// result — used for tool-use blocks rejected before admission (unknown
// tool name, schema validation failure, denied permission). It still
// occupies its enqueue-order slot so the consumer sees results in the
// order the assistant requested them.
func NewErrorEntry(tc message.ToolCall, errText string) *Entry {
	e := newEntry(tc, nil, nil, "", true)
	e.status = statusCompleted
	e.result = message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    errText,
		IsError:    true,
	}
	return e
}

// Queue schedules and drains one assistant turn's batch of tool-use
// entries. A Queue is single-use: construct with NewBatch, call Run once.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
	tctx    *tool.Context

	hasErrored bool
	notify     chan struct{}
}

// NewBatch constructs a Queue over entries, in the order the assistant
// requested them. tctx is the ambient per-turn context; concurrency-safe
// tools' context modifiers are folded into it in enqueue order once the
// whole batch has drained, non-safe tools' modifiers are folded in
// immediately on completion.
func NewBatch(tctx *tool.Context, entries []*Entry) *Queue {
	return &Queue{
		entries: entries,
		tctx:    tctx,
		notify:  make(chan struct{}, 1),
	}
}

func (q *Queue) poke() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run drives the queue to completion, returning a channel of progress and
// result messages in the ordering guaranteed by the scheduler (see package
// doc). The channel closes once every entry has been yielded.
func (q *Queue) Run(ctx context.Context) <-chan message.Message {
	out := make(chan message.Message)
	go q.loop(ctx, out)
	return out
}

// FinalContext returns the ambient context after every entry's modifier
// (immediate or deferred) has been folded in. Only meaningful after the
// channel returned by Run has closed.
func (q *Queue) FinalContext() *tool.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tctx
}

func (q *Queue) loop(ctx context.Context, out chan<- message.Message) {
	defer close(out)

	cancelObserved := false
	for {
		select {
		case <-q.notify:
		default:
		}

		q.schedule(ctx)
		q.emitProgress(out)
		q.yieldCompletedInOrder(out)

		if q.allYielded() {
			return
		}

		if cancelObserved {
			<-q.notify
			continue
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			cancelObserved = true
		}
	}
}

// schedule starts every queued entry eligible to run: concurrency-safe
// entries may run alongside other concurrency-safe entries, but never
// alongside a non-safe entry; a non-safe entry only starts once the queue
// is otherwise idle. Entries that cannot yet start because of a barrier
// get a single "Waiting…" progress note. Entries that can never start
// because the turn was cancelled or a sibling already errored are
// completed synthetically, in place, without running.
func (q *Queue) schedule(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	anyExecuting := false
	anyNonSafeExecuting := false
	for _, e := range q.entries {
		e.mu.Lock()
		st := e.status
		safe := e.Safe
		e.mu.Unlock()
		if st == statusExecuting {
			anyExecuting = true
			if !safe {
				anyNonSafeExecuting = true
			}
		}
	}

	aborted := ctx.Err() != nil || q.hasErrored

	for _, e := range q.entries {
		e.mu.Lock()
		st := e.status
		e.mu.Unlock()
		if st != statusQueued {
			continue
		}

		if aborted {
			q.abortEntry(e)
			continue
		}

		blocked := (e.Safe && anyNonSafeExecuting) || (!e.Safe && anyExecuting)
		if blocked {
			e.mu.Lock()
			already := e.waitedNotified
			e.waitedNotified = true
			e.mu.Unlock()
			if !already {
				e.addProgress("Waiting…")
			}
			continue
		}

		q.start(ctx, e)
		anyExecuting = true
		if !e.Safe {
			anyNonSafeExecuting = true
		}
	}
}

// abortEntry completes a never-started entry with a synthetic error
// result. A sibling failure takes precedence over cancellation: once any
// entry in the batch has errored, every remaining queued entry is
// reported as not invoked because of that sibling, rather than as
// rejected by the user, even if cancellation also happened to fire.
func (q *Queue) abortEntry(e *Entry) {
	var content string
	if q.hasErrored {
		content = message.SiblingErrorMessage
	} else {
		content = message.RejectMessage
	}

	e.mu.Lock()
	e.status = statusCompleted
	e.result = message.ToolResult{
		ToolCallID: e.ToolCall.ID,
		ToolName:   e.ToolCall.Name,
		Content:    content,
		IsError:    true,
	}
	e.mu.Unlock()

	q.hasErrored = true
}

// start launches an entry's tool call in its own goroutine. Must be called
// with q.mu held.
func (q *Queue) start(ctx context.Context, e *Entry) {
	e.mu.Lock()
	e.status = statusExecuting
	e.mu.Unlock()

	go q.runEntry(ctx, e)
}

func (q *Queue) runEntry(ctx context.Context, e *Entry) {
	events := tool.Call(ctx, e.Tool, e.Params, e.Cwd)

	var (
		result    message.ToolResult
		followUps []message.Message
		modifier  tool.ContextModifier
		done      bool
	)

loop:
	for !done {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				break loop
			}
			switch ev.Kind {
			case tool.EventProgress:
				e.addProgress(ev.Progress)
				q.poke()
			case tool.EventResult:
				result = toResultMessage(e.ToolCall, ev.Result)
				followUps = ev.FollowUps
				modifier = ev.Modifier
			}
		case <-ctx.Done():
			result = message.ToolResult{
				ToolCallID: e.ToolCall.ID,
				ToolName:   e.ToolCall.Name,
				Content:    message.RejectMessage,
				IsError:    true,
			}
			followUps = nil
			modifier = nil
			done = true
		}
	}

	q.completeEntry(e, result, followUps, modifier)
}

func (q *Queue) completeEntry(e *Entry, result message.ToolResult, followUps []message.Message, modifier tool.ContextModifier) {
	e.mu.Lock()
	e.status = statusCompleted
	e.result = result
	e.followUps = followUps
	e.modifier = modifier
	safe := e.Safe
	e.mu.Unlock()

	q.mu.Lock()
	if result.IsError {
		q.hasErrored = true
	}
	if !safe && modifier != nil {
		q.tctx = modifier(q.tctx)
		e.mu.Lock()
		e.modifier = nil // applied already; skip at finalization
		e.mu.Unlock()
	}
	q.mu.Unlock()

	q.poke()
}

func (q *Queue) emitProgress(out chan<- message.Message) {
	q.mu.Lock()
	entries := append([]*Entry(nil), q.entries...)
	q.mu.Unlock()

	for _, e := range entries {
		for _, text := range e.takeProgress() {
			out <- message.ProgressMessage(e.ToolCall.ID, e.siblingIDs(entries), text)
		}
	}
}

// yieldCompletedInOrder walks entries in enqueue order, yielding every
// completed-but-not-yet-yielded entry's result. It stops at the first
// entry that has not completed, so a later entry's result is never handed
// to the consumer ahead of an earlier one still in flight.
func (q *Queue) yieldCompletedInOrder(out chan<- message.Message) {
	q.mu.Lock()
	entries := append([]*Entry(nil), q.entries...)
	q.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.yielded {
			e.mu.Unlock()
			continue
		}
		if e.status != statusCompleted {
			e.mu.Unlock()
			return
		}
		result := e.result
		followUps := e.followUps
		e.yielded = true
		e.mu.Unlock()

		out <- message.ToolResultMessage(result)
		for _, fm := range followUps {
			out <- fm
		}
	}
}

func (q *Queue) allYielded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.mu.Lock()
		y := e.yielded
		e.mu.Unlock()
		if !y {
			return false
		}
	}

	// Fold in any deferred (concurrency-safe) modifiers, in enqueue order,
	// now that the whole batch has drained.
	for _, e := range q.entries {
		e.mu.Lock()
		m := e.modifier
		e.modifier = nil
		e.mu.Unlock()
		if m != nil {
			q.tctx = m(q.tctx)
		}
	}
	return true
}

func (e *Entry) siblingIDs(all []*Entry) []string {
	var ids []string
	for _, other := range all {
		if other.ToolCall.ID != e.ToolCall.ID {
			ids = append(ids, other.ToolCall.ID)
		}
	}
	return ids
}

func toResultMessage(tc message.ToolCall, r ui.ToolResult) message.ToolResult {
	return message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    r.FormatForLLM(),
		IsError:    !r.Success,
	}
}
