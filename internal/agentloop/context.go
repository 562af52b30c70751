package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kodecli/kode/internal/transcript"
	"github.com/kodecli/kode/llm"
)

const (
	// CharsPerToken is the heuristic ratio for estimating token count.
	CharsPerToken = 4
	// ContextBuffer is the fraction of context to keep free (20%).
	ContextBuffer = 0.2
)

// EstimateTokens estimates the token count for a message using the char heuristic.
func EstimateTokens(msg llm.Message) int {
	tokens := len(msg.Role) / CharsPerToken
	if msg.Content != nil {
		tokens += len(*msg.Content) / CharsPerToken
	}
	for _, tc := range msg.ToolCalls {
		tokens += len(tc.Function.Name) / CharsPerToken
		tokens += len(tc.Function.Arguments) / CharsPerToken
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateToolDefTokens estimates token count for tool definitions using the chars/4 heuristic.
func EstimateToolDefTokens(defs []llm.ToolDef) int {
	data, err := json.Marshal(defs)
	if err != nil {
		return 0
	}
	tokens := len(data) / CharsPerToken
	if tokens < 1 && len(defs) > 0 {
		tokens = 1
	}
	return tokens
}

// compactionPrompt returns the system prompt used when asking the LLM to summarize the conversation.
func compactionPrompt() string {
	return `Your task is to create a detailed summary of the conversation so far, paying close attention to the user's explicit requests and your previous actions. This summary should be thorough in capturing technical details, code patterns, and architectural decisions essential for continuing work without losing context.

Before providing your final summary, wrap your analysis in <analysis> tags to organize your thoughts. In your analysis:
1. Chronologically analyze each message, identifying: the user's explicit requests and intents, your approach, key decisions and code patterns, specific file names, code snippets, function signatures, and file edits.
2. Note errors encountered and how they were fixed, paying special attention to user feedback.
3. Double-check for technical accuracy and completeness.

Your summary should include these sections:

1. Primary Request and Intent: All of the user's explicit requests and intents in detail.
2. Key Technical Concepts: Important technical concepts, technologies, and frameworks discussed.
3. Files and Code Sections: Specific files examined, modified, or created, with summaries of why each is important and what changes were made. Include code snippets where applicable.
4. Errors and Fixes: All errors encountered and how they were resolved, including any user feedback.
5. Problem Solving: Problems solved and any ongoing troubleshooting.
6. Pending Tasks: Any tasks explicitly asked for that remain incomplete.
7. Current Work: Precisely what was being worked on immediately before this summary, including file names and code snippets.
8. Optional Next Step: The next step related to the most recent work, only if directly in line with the user's most recent explicit request.

Drop verbose tool outputs (full file contents, long search results) — instead note what was learned. Drop redundant back-and-forth and dead-end steps unless the dead end itself is informative.

Output the summary directly. Do not include any preamble or meta-commentary outside the analysis and summary.`
}

// serializeHistory formats conversation messages into readable text for the LLM to summarize.
func serializeHistory(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString("[System]\n")
			if msg.Content != nil {
				content := *msg.Content
				if len(content) > 500 {
					content = content[:500] + "...[truncated]"
				}
				sb.WriteString(content)
			}
		case "user":
			sb.WriteString("[User]\n")
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
		case "assistant":
			sb.WriteString("[Assistant]\n")
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&sb, "\n[Tool Call: %s(%s)]", tc.Function.Name, tc.Function.Arguments)
			}
		case "tool":
			sb.WriteString("[Tool Result]\n")
			if msg.Content != nil {
				content := *msg.Content
				if len(content) > 1000 {
					content = content[:1000] + "...[truncated]"
				}
				sb.WriteString(content)
			}
		default:
			fmt.Fprintf(&sb, "[%s]\n", msg.Role)
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// compactIfNeeded checks if conversation tokens exceed 80% of the context window
// and, if so, asks the LLM to produce a summary to replace the history.
func (a *Agent) compactIfNeeded(ctx context.Context, term UI) {
	if a.contextWindow <= 0 {
		return
	}

	threshold := int(float64(a.contextWindow) * (1 - ContextBuffer))
	current := a.lastTokensUsed
	if current == 0 {
		stats := a.ContextUsage()
		current = stats.MessageTokens + stats.SystemTokens + stats.ToolDefTokens
	}
	if current <= threshold {
		return
	}

	term.PrintWarning("Context is large, compacting conversation...")
	a.doCompact(ctx, term)
}

// Compact forces an LLM-based compaction of the conversation history.
func (a *Agent) Compact(ctx context.Context, term UI) error {
	if len(a.conv) == 0 {
		term.PrintWarning("Nothing to compact.")
		return nil
	}
	term.PrintWarning("Compacting conversation...")
	a.doCompact(ctx, term)
	return nil
}

// Clear resets the conversation history to empty.
func (a *Agent) Clear(term UI) {
	a.conv = nil
	a.checkpoints = nil
	a.lastTokensUsed = 0
	term.PrintWarning("Conversation cleared.")
}

// doCompact performs the actual LLM-based compaction.
func (a *Agent) doCompact(ctx context.Context, term UI) {
	apiMsgs := toLLMMessages(transcript.NormalizeForAPI(transcript.Reorder(transcript.Normalize(a.conv))))
	history := serializeHistory(apiMsgs)
	compactMessages := []llm.Message{
		llm.TextMessage("system", compactionPrompt()),
		llm.TextMessage("user", history),
	}

	resp, err := a.client.SendMessage(ctx, compactMessages, nil)
	if err != nil {
		term.PrintWarning("Compaction failed, continuing with full history.")
		return
	}

	summary := ""
	if resp.Message.Content != nil {
		summary = *resp.Message.Content
	}

	var lastUser *transcript.SourceMessage
	for i := len(a.conv) - 1; i >= 0; i-- {
		if a.conv[i].Role == transcript.RoleUser {
			lastUser = &a.conv[i]
			break
		}
	}

	a.conv = nil
	if summary != "" {
		a.conv = append(a.conv, userTextSourceMessage(
			"[Conversation compacted] Here is a summary of our conversation so far:\n\n"+summary))
	}
	if lastUser != nil {
		a.conv = append(a.conv, *lastUser)
	}

	a.lastTokensUsed = 0
	a.checkpoints = nil
	term.PrintWarning("Context compacted successfully.")
}
