// Package agentloop orchestrates LLM conversations with tool execution via
// internal/scheduler, context compaction, session persistence, and
// checkpointing, over a transcript.SourceMessage conversation.
package agentloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kodecli/kode/internal/freshness"
	"github.com/kodecli/kode/internal/kodetools"
	"github.com/kodecli/kode/internal/permission"
	"github.com/kodecli/kode/internal/scheduler"
	"github.com/kodecli/kode/internal/tool"
	"github.com/kodecli/kode/internal/transcript"
	"github.com/kodecli/kode/llm"
)

// MaxIterationsPerTurn limits the number of LLM round-trips per user message
// to prevent runaway tool-use loops.
const MaxIterationsPerTurn = 50

// Agent orchestrates the LLM conversation and tool execution loop.
type Agent struct {
	client         llm.LLMClient
	registry       *tool.Registry
	scheduler      *scheduler.Scheduler
	gate           *permission.Gate
	store          *permission.Store
	freshness      *freshness.Registry
	workDir        string
	contextWindow  int
	lastTokensUsed int

	sessionID      string
	sessionCreated time.Time

	conv          []transcript.SourceMessage
	checkpoints   []Checkpoint
	fileOriginals map[string]*FileSnapshot
	tasks         []Task

	term UI
	log  *zap.Logger
}

// New creates a new Agent wired with the built-in tool registry, permission
// gate, and freshness registry.
func New(client llm.LLMClient, workDir string, contextWindow int, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop()
	}

	a := &Agent{
		client:         client,
		workDir:        workDir,
		contextWindow:  contextWindow,
		sessionID:      generateSessionID(),
		sessionCreated: time.Now(),
		fileOriginals:  make(map[string]*FileSnapshot),
		freshness:      freshness.New(freshness.DefaultEpsilon),
		log:            log,
	}

	gate := permission.NewGate(nil)
	store, err := permission.NewStore(gate, workDir, log)
	if err != nil {
		return nil, fmt.Errorf("load permission settings: %w", err)
	}
	if err := store.Watch(); err != nil {
		return nil, fmt.Errorf("watch permission settings: %w", err)
	}
	a.gate = gate
	a.store = store

	reg := tool.NewRegistry()
	taskCB := kodetools.TaskCallbacks{
		WriteTasks: a.WriteTasks,
		UpdateTask: a.UpdateTask,
		ReadTasks:  a.TaskSummary,
	}
	if err := kodetools.Register(reg, workDir, a.runExplore, taskCB); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	a.registry = reg

	a.scheduler = scheduler.New(reg, gate, TerminalAsker{agent: a}, log)

	return a, nil
}

// Close releases the background settings watcher.
func (a *Agent) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// SetClient swaps the LLM client and context window (e.g., after /model).
func (a *Agent) SetClient(client llm.LLMClient, contextWindow int) {
	a.client = client
	a.contextWindow = contextWindow
}

// Run processes a user message through the agent loop.
func (a *Agent) Run(ctx context.Context, userMessage string, term UI) error {
	a.term = term
	a.CreateCheckpoint(userMessage)
	a.conv = append(a.conv, userTextSourceMessage(userMessage))

	opCtx, listener, escErr := term.StartEscapeListener(ctx)
	if escErr != nil {
		opCtx = ctx
		listener = noopInterrupter{}
	}
	defer listener.Stop()

	for iteration := 0; iteration < MaxIterationsPerTurn; iteration++ {
		a.compactIfNeeded(opCtx, term)
		term.PrintSpinner()

		apiMsgs := toLLMMessages(transcript.NormalizeForAPI(transcript.Reorder(transcript.Normalize(a.conv))))
		sys := llm.TextMessage("system", a.systemPrompt())
		llmMsgs := append([]llm.Message{sys}, apiMsgs...)

		events, err := a.client.StreamMessage(opCtx, llmMsgs, toolDefs(a.registry))
		if err != nil {
			term.ClearSpinner()
			if opCtx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("LLM request failed: %w", err)
		}

		spinnerCleared := false
		clearSpinner := func() {
			if !spinnerCleared {
				term.ClearSpinner()
				spinnerCleared = true
			}
		}

		resp, err := llm.AccumulateStream(events, func(text string) {
			clearSpinner()
			term.PrintAssistant(text)
		})
		clearSpinner()
		if err != nil {
			if opCtx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("stream error: %w", err)
		}

		if resp.Usage.TotalTokens > 0 {
			a.lastTokensUsed = resp.Usage.TotalTokens
		}

		a.conv = append(a.conv, assistantSourceMessage(resp.Message))

		switch resp.FinishReason {
		case "length":
			term.PrintAssistantDone()
			term.PrintWarning("Response was truncated due to token limit.")
			return nil
		case "stop":
			term.PrintAssistantDone()
			return nil
		}

		if len(resp.Message.ToolCalls) == 0 {
			term.PrintAssistantDone()
			return nil
		}

		if resp.Message.Content != nil && *resp.Message.Content != "" {
			fmt.Println()
		}

		reqs := buildRequests(resp.Message.ToolCalls)
		ictx := tool.InvokeContext{AgentID: a.sessionID, Freshness: a.freshness, Permissions: a.gate}

		for _, tc := range resp.Message.ToolCalls {
			term.PrintToolCall(tc.Function.Name, tc.Function.Arguments)
		}

		ch := a.scheduler.Run(opCtx, reqs, ictx)
		for ev := range ch {
			switch ev.Kind {
			case scheduler.EventProgress:
				term.PrintToolProgress(ev.Progress.ToolUseID, ev.Progress.Content)
				a.conv = append(a.conv, progressSourceMessage(ev.Progress))
			case scheduler.EventResult:
				term.PrintToolResult(ev.Result.Content)
				a.conv = append(a.conv, toolResultSourceMessage(ev.Result))
			}
		}

		if opCtx.Err() != nil {
			fmt.Println()
			return context.Canceled
		}
	}

	return fmt.Errorf("agent loop exceeded maximum iterations (%d)", MaxIterationsPerTurn)
}

// MaxExploreIterations is the iteration limit for the explore sub-agent.
const MaxExploreIterations = 30

// runExplore spawns a child agent with read-only tools to research the
// codebase. It uses non-streaming SendMessage to avoid interleaved terminal
// output, and fans tool calls out directly rather than via the scheduler:
// every tool available to it is read-only and concurrency-safe, so the
// scheduler's barrier/permission machinery has nothing to arbitrate.
func (a *Agent) runExplore(ctx context.Context, task string) (string, error) {
	roRegistry, err := kodetools.NewReadOnlyRegistry(a.workDir)
	if err != nil {
		return "", fmt.Errorf("build read-only registry: %w", err)
	}

	messages := []llm.Message{
		llm.TextMessage("system", exploreSystemPrompt(a.workDir)),
		llm.TextMessage("user", task),
	}

	totalSteps := 0
	ictx := tool.InvokeContext{AgentID: a.sessionID, Freshness: a.freshness}

	for iteration := 0; iteration < MaxExploreIterations; iteration++ {
		resp, err := a.client.SendMessage(ctx, messages, toolDefs(roRegistry))
		if err != nil {
			return "", fmt.Errorf("explore sub-agent LLM error: %w", err)
		}

		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			if a.term != nil {
				a.term.PrintSubAgentStatus(fmt.Sprintf("Explore complete (%d tool calls)", totalSteps))
			}
			return resp.Message.ContentString(), nil
		}

		for _, tc := range resp.Message.ToolCalls {
			totalSteps++
			if a.term != nil {
				a.term.PrintSubAgentToolCall(tc.Function.Name, tc.Function.Arguments)
			}
		}

		outputs := make([]string, len(resp.Message.ToolCalls))
		done := make(chan struct{}, len(resp.Message.ToolCalls))
		for i, tc := range resp.Message.ToolCalls {
			go func(idx int, tc llm.ToolCall) {
				defer func() { done <- struct{}{} }()
				outputs[idx] = runReadOnlyTool(ctx, roRegistry, tc, ictx)
			}(i, tc)
		}
		for range resp.Message.ToolCalls {
			<-done
		}

		for i, tc := range resp.Message.ToolCalls {
			messages = append(messages, llm.ToolResultMessage(tc.ID, outputs[i]))
		}
	}

	if a.term != nil {
		a.term.PrintSubAgentStatus(fmt.Sprintf("Explore reached max iterations (%d tool calls)", totalSteps))
	}
	return "Explore sub-agent reached maximum iterations without completing.", nil
}

func runReadOnlyTool(ctx context.Context, reg *tool.Registry, tc llm.ToolCall, ictx tool.InvokeContext) string {
	d, ok := reg.Get(tc.Function.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", tc.Function.Name)
	}
	input := []byte(tc.Function.Arguments)
	if verr := d.Validate(input); verr != nil {
		return fmt.Sprintf("Error: validation failed: %s", verr.Message)
	}
	events, err := d.Invoke(ctx, input, ictx)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}
	var last tool.Result
	for ev := range events {
		if ev.Kind == tool.EventResult {
			last = ev.Result
		}
	}
	if last.IsError {
		return fmt.Sprintf("Error: %s", last.Data)
	}
	return last.Data
}

func exploreSystemPrompt(workDir string) string {
	return fmt.Sprintf(`You are an exploration sub-agent. Your job is to thoroughly research the codebase to answer the given question.

Working directory: %s

This is a READ-ONLY exploration task. You only have access to: Glob, Grep, List, Read.

Guidelines:
- Use Glob for broad file pattern matching (prefer over repeated List calls)
- Use Grep for searching file contents with regex
- Use Read when you know the specific file path
- Use List only when you need to see directory structure

You are meant to be a fast agent. To achieve this:
- Make efficient use of your tools — be smart about how you search
- Wherever possible, call multiple tools in parallel. When you find several files to read, read them ALL in one response instead of one at a time
- Start broad (Glob, Grep) then narrow down to specific reads

When you have gathered enough information, provide a clear, structured summary of your findings. Do not ask follow-up questions — just research and report.`, workDir)
}

// ContextStats holds context usage statistics.
type ContextStats struct {
	TotalTokens   int
	ContextWindow int
	Threshold     int
	MessageCount  int
	SystemTokens  int
	ToolDefTokens int
	MessageTokens int
	ActualTokens  int
}

// ContextUsage returns current context usage statistics.
func (a *Agent) ContextUsage() ContextStats {
	apiMsgs := toLLMMessages(transcript.NormalizeForAPI(transcript.Reorder(transcript.Normalize(a.conv))))
	stats := ContextStats{
		ContextWindow: a.contextWindow,
		Threshold:     int(float64(a.contextWindow) * (1 - ContextBuffer)),
		MessageCount:  len(apiMsgs),
		ActualTokens:  a.lastTokensUsed,
	}
	stats.SystemTokens = EstimateTokens(llm.TextMessage("system", a.systemPrompt()))
	for _, msg := range apiMsgs {
		stats.MessageTokens += EstimateTokens(msg)
	}
	stats.ToolDefTokens = EstimateToolDefTokens(toolDefs(a.registry))
	stats.TotalTokens = stats.ActualTokens
	if stats.TotalTokens == 0 {
		stats.TotalTokens = stats.SystemTokens + stats.ToolDefTokens + stats.MessageTokens
	}
	return stats
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder

	sb.WriteString(`You are Kode, an AI coding assistant running in the terminal. You help users with software engineering tasks. Use the instructions below and the tools available to you to assist the user.

IMPORTANT: Assist with authorized security testing, defensive security, CTF challenges, and educational contexts. Refuse requests for destructive techniques, DoS attacks, mass targeting, supply chain compromise, or detection evasion for malicious purposes.

# Doing tasks
The user will primarily request you to perform software engineering tasks. These include solving bugs, adding new functionality, refactoring code, explaining code, and more.
- NEVER propose changes to code you haven't read. If a user asks about or wants you to modify a file, read it first. Understand existing code before suggesting modifications.
- Be careful not to introduce security vulnerabilities such as command injection, XSS, SQL injection, and other OWASP top 10 vulnerabilities. If you notice that you wrote insecure code, immediately fix it.
- Avoid over-engineering. Only make changes that are directly requested or clearly necessary. Keep solutions simple and focused.
  - Don't add features, refactor code, or make "improvements" beyond what was asked. A bug fix doesn't need surrounding code cleaned up. A simple feature doesn't need extra configurability. Don't add docstrings, comments, or type annotations to code you didn't change. Only add comments where the logic isn't self-evident.
  - Don't add error handling, fallbacks, or validation for scenarios that can't happen. Trust internal code and framework guarantees. Only validate at system boundaries (user input, external APIs). Don't use feature flags or backwards-compatibility shims when you can just change the code.
  - Don't create helpers, utilities, or abstractions for one-time operations. Don't design for hypothetical future requirements. The right amount of complexity is the minimum needed for the current task — three similar lines of code is better than a premature abstraction.
- Avoid backwards-compatibility hacks like renaming unused ` + "`_vars`" + `, re-exporting types, adding ` + "`// removed`" + ` comments for removed code, etc. If something is unused, delete it completely.

# Executing actions with care

Carefully consider the reversibility and blast radius of actions. Generally you can freely take local, reversible actions like editing files or running tests. But for actions that are hard to reverse, affect shared systems beyond your local environment, or could otherwise be risky or destructive, check with the user before proceeding. The cost of pausing to confirm is low, while the cost of an unwanted action (lost work, unintended messages sent, deleted branches) can be very high.

Examples of risky actions that warrant user confirmation:
- Destructive operations: deleting files/branches, dropping database tables, killing processes, rm -rf, overwriting uncommitted changes
- Hard-to-reverse operations: force-pushing, git reset --hard, amending published commits, removing or downgrading packages/dependencies
- Actions visible to others or that affect shared state: pushing code, creating/closing/commenting on PRs or issues, sending messages, modifying shared infrastructure

When you encounter an obstacle, do not use destructive actions as a shortcut. Try to identify root causes and fix underlying issues rather than bypassing safety checks (e.g. --no-verify). If you discover unexpected state like unfamiliar files, branches, or configuration, investigate before deleting or overwriting, as it may represent the user's in-progress work. When in doubt, ask before acting.

# Tool usage policy
- You can call multiple tools in a single response. If you intend to call multiple tools and there are no dependencies between them, make all independent tool calls in parallel. However, if some tool calls depend on previous calls, do NOT call these tools in parallel — call them sequentially instead.
- Use dedicated tools instead of Bash for file operations: Read for reading files (not cat/head/tail), Edit for editing (not sed/awk), Write for creating files (not echo/cat with heredoc). Reserve Bash exclusively for system commands and terminal operations that require shell execution.
- NEVER use Bash echo or other command-line tools to communicate with the user. Output all communication directly in your response text.
- Do not create files unless they're absolutely necessary for achieving your goal. ALWAYS prefer editing an existing file to creating a new one, including markdown files.
- For broad codebase exploration questions (project structure, how a feature works, finding patterns across files), use the Explore tool to delegate the research to a focused sub-agent. This keeps the main conversation focused and avoids cluttering context with intermediate search results.
- write_tasks/update_task/read_tasks track a visible task plan for multi-step work. Write the plan before starting, update each task's status as you go.

# Tone and style
- Only use emojis if the user explicitly requests it.
- Your output will be displayed on a command line interface. Responses should be short and concise. You can use Github-flavored markdown for formatting.
- Do not use a colon before tool calls. Text like "Let me read the file:" followed by a tool call should just be "Let me read the file." with a period.
- Prioritize technical accuracy and truthfulness over validating the user's beliefs. Provide direct, objective technical info without unnecessary praise or emotional validation. Disagree when necessary — objective guidance and respectful correction are more valuable than false agreement.
- Never give time estimates or predictions for how long tasks will take. Focus on what needs to be done, not how long it might take.

# Git workflow
When asked to create git commits:
- Only commit when the user explicitly requests it
- NEVER force-push, reset --hard, use --no-verify, or amend unless the user explicitly asks
- Prefer staging specific files over ` + "`git add -A`" + ` or ` + "`git add .`" + `
- NEVER use interactive flags (` + "`-i`" + `) since they require interactive input
- Use HEREDOC for multi-line commit messages
When asked to create pull requests:
- Use ` + "`gh pr create`" + ` with a clear title and structured body
- Keep PR titles short (under 70 characters)

`)

	sb.WriteString("# Environment\n\nWorking directory: ")
	sb.WriteString(a.workDir)
	sb.WriteString("\n\n")

	sb.WriteString(`# Memory

Project knowledge is stored in MEMORY.md at the project root. This file is human-editable and version-controlled.
To persist important context (conventions, architecture decisions, gotchas), use the Write/Edit tool to update MEMORY.md.
`)

	memoryPath := filepath.Join(a.workDir, "MEMORY.md")
	if data, err := os.ReadFile(memoryPath); err == nil && len(data) > 0 {
		sb.WriteString("\n## Project Memory (MEMORY.md)\n\n")
		sb.WriteString(string(data))
		sb.WriteString("\n")
	}

	return sb.String()
}
