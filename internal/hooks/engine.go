package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kestrelcode/kestrel/internal/config"
	"github.com/kestrelcode/kestrel/internal/log"
	"github.com/kestrelcode/kestrel/internal/message"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default hook timeouts per kind, used when a hook doesn't set its own
// timeout (spec §4.6: "60 s for commands / 30 s for prompts").
const (
	DefaultCommandTimeout = 60
	DefaultPromptTimeout  = 30
)

// QuickLLM is the narrow interface a prompt hook needs from the LLM client:
// a single non-streaming completion, the same shape as Client.Complete.
type QuickLLM interface {
	Complete(ctx context.Context, sysPrompt string, msgs []message.Message, maxTokens int) (message.CompletionResponse, error)
}

// Engine executes hooks based on events.
type Engine struct {
	settings       *config.Settings
	sessionID      string
	cwd            string
	transcriptPath string
	permissionMode string
	llm            QuickLLM
	once           map[string]bool
	onceMu         sync.Mutex
}

// NewEngine creates a new hook execution engine.
func NewEngine(settings *config.Settings, sessionID, cwd, transcriptPath string) *Engine {
	return &Engine{
		settings:       settings,
		sessionID:      sessionID,
		cwd:            cwd,
		transcriptPath: transcriptPath,
		permissionMode: "normal",
		once:           make(map[string]bool),
	}
}

// SetPermissionMode sets the current permission mode (normal, auto, plan).
func (e *Engine) SetPermissionMode(mode string) {
	e.permissionMode = mode
}

// SetQuickLLM wires the client used for prompt-kind hooks. Safe to call
// repeatedly as the session's model configuration changes.
func (e *Engine) SetQuickLLM(llm QuickLLM) {
	e.llm = llm
}

// Execute runs all matching hooks for an event. Hooks registered as async
// fire immediately and don't block the event; the remaining hooks run in
// parallel (spec §4.6: "Parallel execution within one event"), with results
// aggregated in the hooks' configured order once all have finished — the
// first block in that order is fatal, otherwise system-messages and
// additional-contexts are appended in that order.
func (e *Engine) Execute(ctx context.Context, event EventType, input HookInput) HookOutcome {
	outcome := HookOutcome{ShouldContinue: true}

	hooks := e.getMatchingHooks(event, &input)
	if len(hooks) == 0 {
		if event == SessionEnd {
			e.importEnvFile()
		}
		return outcome
	}

	var blocking, fireAndForget []config.HookCmd
	for _, cmd := range hooks {
		if e.skipOnce(event, cmd) {
			continue
		}
		if cmd.Async {
			fireAndForget = append(fireAndForget, cmd)
		} else {
			blocking = append(blocking, cmd)
		}
	}

	for _, cmd := range fireAndForget {
		cmdCopy, inputCopy := cmd, input
		go e.runHook(context.Background(), cmdCopy, inputCopy)
	}

	for _, result := range e.runParallel(ctx, blocking, input) {
		if result.Error != nil {
			log.Logger().Warn("hook execution failed",
				zap.String("event", string(event)),
				zap.Error(result.Error))
			continue
		}

		if !result.ShouldContinue {
			outcome = result
			break
		}

		outcome = e.mergeOutcome(outcome, result)
	}

	if event == SessionEnd {
		e.importEnvFile()
	}

	return outcome
}

// runParallel runs cmds concurrently and returns their outcomes in the
// hooks' configured order (deterministic, independent of which finishes
// first).
func (e *Engine) runParallel(ctx context.Context, cmds []config.HookCmd, input HookInput) []HookOutcome {
	if len(cmds) == 0 {
		return nil
	}

	results := make([]HookOutcome, len(cmds))
	g, gctx := errgroup.WithContext(ctx)
	for i, cmd := range cmds {
		i, cmd := i, cmd
		g.Go(func() error {
			// Pre-allocated index, no mutex: each goroutine owns its slot.
			results[i] = e.runHook(gctx, cmd, input)
			return nil // hook failures surface via HookOutcome, not the group error
		})
	}
	_ = g.Wait()
	return results
}

// runHook dispatches a single hook to its kind-specific runner.
func (e *Engine) runHook(ctx context.Context, cmd config.HookCmd, input HookInput) HookOutcome {
	if cmd.Type == "prompt" {
		return e.executePromptHook(ctx, cmd, input)
	}
	return e.executeCommand(ctx, cmd, input)
}

// skipOnce reports whether a "once"-scoped hook has already fired this
// session for this event, marking it fired if not.
func (e *Engine) skipOnce(event EventType, cmd config.HookCmd) bool {
	if !cmd.Once {
		return false
	}
	key := string(event) + "|" + cmd.Command + "|" + cmd.Prompt
	e.onceMu.Lock()
	defer e.onceMu.Unlock()
	if e.once[key] {
		return true
	}
	e.once[key] = true
	return false
}

// mergeOutcome merges result into outcome.
func (e *Engine) mergeOutcome(outcome, result HookOutcome) HookOutcome {
	outcome.AdditionalContext = appendContext(outcome.AdditionalContext, result.AdditionalContext)
	if result.UpdatedInput != nil {
		outcome.UpdatedInput = result.UpdatedInput
	}
	outcome.AskUser = outcome.AskUser || result.AskUser
	outcome.ForceAllow = outcome.ForceAllow || result.ForceAllow
	return outcome
}

// ExecuteAsync runs all matching hooks asynchronously (fire-and-forget).
func (e *Engine) ExecuteAsync(event EventType, input HookInput) {
	hooks := e.getMatchingHooks(event, &input)
	for _, cmd := range hooks {
		cmdCopy, inputCopy := cmd, input
		go e.runHook(context.Background(), cmdCopy, inputCopy)
	}
}

// HasHooks returns true if there are any hooks configured for the given event.
func (e *Engine) HasHooks(event EventType) bool {
	if e.settings == nil {
		return false
	}
	hooks, ok := e.settings.Hooks[string(event)]
	return ok && len(hooks) > 0
}

// getMatchingHooks returns all hook commands that match the event and input.
func (e *Engine) getMatchingHooks(event EventType, input *HookInput) []config.HookCmd {
	if e.settings == nil {
		return nil
	}

	hooks, ok := e.settings.Hooks[string(event)]
	if !ok {
		return nil
	}

	e.populateInputFields(input, event)
	matchValue := GetMatchValue(event, *input)

	var cmds []config.HookCmd
	for _, hook := range hooks {
		if MatchesEvent(hook.Matcher, matchValue) {
			cmds = append(cmds, e.extractCommands(hook.Hooks)...)
		}
	}
	return cmds
}

// populateInputFields fills common fields in hook input.
func (e *Engine) populateInputFields(input *HookInput, event EventType) {
	input.SessionID = e.sessionID
	input.TranscriptPath = e.transcriptPath
	input.Cwd = e.cwd
	input.PermissionMode = e.permissionMode
	input.HookEventName = string(event)
}

// extractCommands filters and returns command- and prompt-type hooks.
func (e *Engine) extractCommands(hooks []config.HookCmd) []config.HookCmd {
	var cmds []config.HookCmd
	for _, cmd := range hooks {
		if cmd.Type == "" || cmd.Type == "command" || cmd.Type == "prompt" {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// executeCommand runs a single command-kind hook: a shell spawned with the
// event's JSON payload on stdin.
func (e *Engine) executeCommand(ctx context.Context, hookCmd config.HookCmd, input HookInput) HookOutcome {
	outcome := HookOutcome{ShouldContinue: true}

	if hookCmd.Command == "" {
		return outcome
	}

	timeout := DefaultCommandTimeout
	if hookCmd.Timeout > 0 {
		timeout = hookCmd.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		outcome.Error = fmt.Errorf("failed to marshal input: %w", err)
		return outcome
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", hookCmd.Command)
	cmd.Dir = e.cwd
	cmd.Stdin = bytes.NewReader(inputJSON)
	cmd.Env = e.buildEnv(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := getExitCode(runErr)
	if exitCode < 0 {
		outcome.Error = runErr
		return outcome
	}

	if exitCode == 2 {
		return e.handleBlockingExit(&stdout, &stderr)
	}

	if exitCode != 0 {
		log.Logger().Debug("hook exited with non-zero code",
			zap.Int("exitCode", exitCode),
			zap.String("stderr", stderr.String()))
		return outcome
	}

	return e.parseOutput(firstBalancedJSON(stdout.String()), outcome)
}

// executePromptHook runs a single prompt-kind hook: a quick LLM pass over a
// canned system prompt describing the expected decision JSON, plus the
// hook's template with $TOOL_INPUT/$TOOL_RESULT/$USER_PROMPT substituted.
// A no-op (outcome unchanged) if no QuickLLM has been wired.
func (e *Engine) executePromptHook(ctx context.Context, hookCmd config.HookCmd, input HookInput) HookOutcome {
	outcome := HookOutcome{ShouldContinue: true}

	if hookCmd.Prompt == "" || e.llm == nil {
		return outcome
	}

	timeout := DefaultPromptTimeout
	if hookCmd.Timeout > 0 {
		timeout = hookCmd.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	rendered := renderPromptTemplate(hookCmd.Prompt, input)
	resp, err := e.llm.Complete(ctx, promptHookSystemPrompt, []message.Message{message.UserMessage(rendered, nil)}, 512)
	if err != nil {
		outcome.Error = fmt.Errorf("prompt hook failed: %w", err)
		return outcome
	}

	return e.parseOutput(firstBalancedJSON(resp.Content), outcome)
}

// promptHookSystemPrompt instructs the quick LLM pass to emit only the
// decision JSON shape a command hook would otherwise print to stdout.
const promptHookSystemPrompt = `You evaluate a single lifecycle event for a coding agent and decide whether ` +
	`it should continue. Respond with exactly one JSON object and nothing else, using any of these optional ` +
	`fields: systemMessage (string), decision ("approve"|"block"), reason (string), hookSpecificOutput ` +
	`{permissionDecision: "allow"|"deny"|"ask"|"passthrough", additionalContext: string}.`

// renderPromptTemplate substitutes the hook template's recognized variables
// from the event input.
func renderPromptTemplate(tmpl string, input HookInput) string {
	toolInputJSON, _ := json.Marshal(input.ToolInput)
	toolResultJSON, _ := json.Marshal(input.ToolResponse)

	replacer := strings.NewReplacer(
		"$TOOL_INPUT", string(toolInputJSON),
		"$TOOL_RESULT", string(toolResultJSON),
		"$USER_PROMPT", input.Prompt,
		"$TOOL_NAME", input.ToolName,
	)
	return replacer.Replace(tmpl)
}

// handleBlockingExit creates an outcome for exit code 2 (blocking error):
// stderr wins if non-empty, else stdout, else a generic message.
func (e *Engine) handleBlockingExit(stdout, stderr *bytes.Buffer) HookOutcome {
	reason := strings.TrimSpace(stderr.String())
	if reason == "" {
		reason = strings.TrimSpace(stdout.String())
	}
	if reason == "" {
		reason = "Hook blocked execution"
	}
	return HookOutcome{
		ShouldContinue: false,
		ShouldBlock:    true,
		BlockReason:    reason,
	}
}

// buildEnv creates environment variables for the hook command.
func (e *Engine) buildEnv(input HookInput) []string {
	env := append(os.Environ(),
		"GEN_PROJECT_DIR="+e.cwd,
		"GEN_SESSION_ID="+e.sessionID,
		"GEN_EVENT_TYPE="+input.HookEventName,
		"CLAUDE_PROJECT_DIR="+e.cwd,
		"CLAUDE_SESSION_ID="+e.sessionID,
		"CLAUDE_EVENT_TYPE="+input.HookEventName,
		"CLAUDE_ENV_FILE="+e.envFilePath(),
	)
	if input.ToolName != "" {
		env = append(env,
			"GEN_TOOL_NAME="+input.ToolName,
			"CLAUDE_TOOL_NAME="+input.ToolName,
		)
	}
	if pluginRoot := os.Getenv("CLAUDE_PLUGIN_ROOT"); pluginRoot != "" {
		env = append(env, "CLAUDE_PLUGIN_ROOT="+pluginRoot)
	}
	return env
}

// envFilePath is the per-session dotenv side-channel a SessionEnd command
// hook may write to, imported into the process environment once all
// SessionEnd hooks have run (spec §4.6).
func (e *Engine) envFilePath() string {
	return filepath.Join(os.TempDir(), "kestrel-hook-env-"+e.sessionID+".env")
}

// importEnvFile reads envFilePath as dotenv KEY=VALUE lines and imports them
// into the process environment. A no-op if the file doesn't exist or is
// malformed.
func (e *Engine) importEnvFile() {
	path := e.envFilePath()
	vars, err := godotenv.Read(path)
	if err != nil {
		return
	}
	for k, v := range vars {
		os.Setenv(k, v)
	}
	os.Remove(path)
}

// getExitCode extracts exit code from error. Returns -1 for non-exit errors.
func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// firstBalancedJSON returns the first balanced {...} object found in s, or
// "" if none. Hook stdout may carry non-JSON noise before or after the
// decision object (spec §6: "first balanced {...} wins").
func firstBalancedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseOutput parses hook JSON output and updates the outcome.
func (e *Engine) parseOutput(output string, outcome HookOutcome) HookOutcome {
	if output == "" {
		return outcome
	}

	var hookOutput HookOutput
	if err := json.Unmarshal([]byte(output), &hookOutput); err != nil {
		log.Logger().Debug("hook output not valid JSON", zap.String("output", output))
		return outcome
	}

	if hookOutput.Continue != nil && !*hookOutput.Continue {
		outcome.ShouldContinue = false
		outcome.ShouldBlock = true
		outcome.BlockReason = firstNonEmpty(hookOutput.StopReason, hookOutput.Reason)
	}

	if hookOutput.Decision == "block" {
		outcome.ShouldContinue = false
		outcome.ShouldBlock = true
		outcome.BlockReason = firstNonEmpty(hookOutput.Reason, hookOutput.StopReason)
	}

	if hookOutput.SystemMessage != "" {
		outcome.AdditionalContext = appendContext(outcome.AdditionalContext, hookOutput.SystemMessage)
	}

	if hso := hookOutput.HookSpecificOutput; hso != nil {
		outcome = e.applySpecificOutput(outcome, hso)
	}

	return outcome
}

// applySpecificOutput applies hook-specific output to the outcome.
func (e *Engine) applySpecificOutput(outcome HookOutcome, hso *HookSpecificOutput) HookOutcome {
	switch hso.PermissionDecision {
	case "deny":
		outcome.ShouldContinue = false
		outcome.ShouldBlock = true
		outcome.BlockReason = hso.PermissionDecisionReason
	case "ask":
		outcome.AskUser = true
	case "allow":
		outcome.ForceAllow = true
	}

	if hso.UpdatedInput != nil {
		outcome.UpdatedInput = hso.UpdatedInput
	}

	outcome.AdditionalContext = appendContext(outcome.AdditionalContext, hso.AdditionalContext)

	if prd := hso.PermissionRequestDecision; prd != nil {
		outcome = e.applyPermissionDecision(outcome, prd)
	}

	return outcome
}

// applyPermissionDecision applies permission decision to the outcome.
func (e *Engine) applyPermissionDecision(outcome HookOutcome, prd *PermissionRequestDecision) HookOutcome {
	if prd.Behavior == "deny" || prd.Interrupt {
		outcome.ShouldContinue = false
		outcome.ShouldBlock = true
		if prd.Message != "" {
			outcome.BlockReason = prd.Message
		}
	}

	if prd.UpdatedInput != nil {
		outcome.UpdatedInput = prd.UpdatedInput
	}

	return outcome
}

// appendContext appends b to a with newline separator if both non-empty.
func appendContext(a, b string) string {
	if b == "" {
		return a
	}
	if a == "" {
		return b
	}
	return a + "\n" + b
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
