package agentloop

import (
	"context"
	"fmt"

	"github.com/kodecli/kode/internal/scheduler"
)

// TerminalAsker implements scheduler.Asker by prompting the user on the
// terminal, replacing the teacher's NeedsConfirmation/handleConfirmation
// flow now that confirmation is the scheduler's own gate+Asker suspension
// point. It also captures a file's pre-modification state for checkpointing
// at the moment of approval, since that capture used to happen in the old
// agent loop's executeToolCalls and now has nowhere else to hook in.
type TerminalAsker struct {
	agent *Agent
}

var _ scheduler.Asker = TerminalAsker{}

// Ask prompts the user to approve or deny one tool-use.
func (a TerminalAsker) Ask(ctx context.Context, toolName, matchSubject string) (bool, error) {
	term := a.agent.term
	if term == nil {
		return false, nil
	}

	// The diff/file-preview the teacher's handleConfirmation printed came
	// from the tool's own pending write/edit closure; the gate's Asker only
	// sees the match subject, so here that's a plain confirm prompt naming
	// the tool and its target rather than a diff.
	approved := term.ConfirmAction(fmt.Sprintf("Apply %s to %s?", toolName, matchSubject))
	if !approved {
		return false, nil
	}

	if toolName == "Edit" || toolName == "Write" {
		a.agent.captureFileBeforeModification(matchSubject)
	}

	return true, nil
}
