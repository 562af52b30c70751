package agentloop

import (
	"context"

	"github.com/kodecli/kode/ui"
)

// UI abstracts the terminal output and interaction methods the loop drives.
// Satisfied by *ui.Terminal; mockable for tests.
type UI interface {
	StartEscapeListener(parent context.Context) (context.Context, ui.Interrupter, error)
	PrintSpinner()
	ClearSpinner()
	PrintAssistant(text string)
	PrintAssistantDone()
	PrintWarning(msg string)
	PrintToolCall(name, args string)
	PrintToolResult(result string)
	// PrintToolProgress renders an intermediate status update for a still-running
	// tool-use; called at most once per progressInterval per id (scheduler-side
	// throttling already applied).
	PrintToolProgress(toolUseID, content string)
	PrintSubAgentToolCall(name, args string)
	PrintSubAgentStatus(msg string)
	PrintDiff(path, oldContent, newContent string)
	PrintFilePreview(path, content string)
	ConfirmAction(prompt string) bool
}

// noopInterrupter is used when escape listening is unavailable (no TTY).
type noopInterrupter struct{}

func (noopInterrupter) Stop()   {}
func (noopInterrupter) Pause()  {}
func (noopInterrupter) Resume() {}
