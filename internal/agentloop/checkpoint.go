package agentloop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kodecli/kode/internal/transcript"
	"github.com/kodecli/kode/llm"
)

// FileSnapshot records a file's state before it was first modified in this session.
type FileSnapshot struct {
	Existed bool
	Content []byte
}

// Checkpoint captures conversation and file state at the start of a user turn.
type Checkpoint struct {
	Turn      int
	Timestamp time.Time
	Preview   string
	MsgIndex  int // len(a.conv) at checkpoint creation
	Files     map[string][]byte
}

// CheckpointItem is a lightweight view of a checkpoint for UI display.
type CheckpointItem struct {
	Turn      int
	Timestamp time.Time
	Preview   string
}

// CreateCheckpoint saves a checkpoint before a user turn begins.
func (a *Agent) CreateCheckpoint(userMessage string) {
	preview := userMessage
	if len(preview) > 100 {
		preview = preview[:100]
	}

	files := make(map[string][]byte, len(a.fileOriginals))
	for path := range a.fileOriginals {
		data, err := os.ReadFile(path)
		if err != nil {
			files[path] = nil
		} else {
			files[path] = data
		}
	}

	a.checkpoints = append(a.checkpoints, Checkpoint{
		Turn:      len(a.checkpoints) + 1,
		Timestamp: time.Now(),
		Preview:   preview,
		MsgIndex:  len(a.conv),
		Files:     files,
	})
}

// captureFileBeforeModification records a file's pre-session state the first
// time it is modified. Subsequent calls for the same path are no-ops.
func (a *Agent) captureFileBeforeModification(path string) {
	if _, ok := a.fileOriginals[path]; ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		a.fileOriginals[path] = &FileSnapshot{Existed: false, Content: nil}
	} else {
		a.fileOriginals[path] = &FileSnapshot{Existed: true, Content: data}
	}
}

// Checkpoints returns a lightweight list of all checkpoints for UI display.
func (a *Agent) Checkpoints() []CheckpointItem {
	items := make([]CheckpointItem, len(a.checkpoints))
	for i, cp := range a.checkpoints {
		items[i] = CheckpointItem{Turn: cp.Turn, Timestamp: cp.Timestamp, Preview: cp.Preview}
	}
	return items
}

// RewindConversation truncates the conversation and checkpoints to the given turn.
func (a *Agent) RewindConversation(turn int) {
	if turn < 1 || turn > len(a.checkpoints) {
		return
	}
	cp := a.checkpoints[turn-1]
	a.conv = a.conv[:cp.MsgIndex]
	a.checkpoints = a.checkpoints[:turn-1]
	a.lastTokensUsed = 0
}

// RewindCode restores files to their state at the given checkpoint.
func (a *Agent) RewindCode(turn int) error {
	if turn < 1 || turn > len(a.checkpoints) {
		return fmt.Errorf("invalid checkpoint turn: %d", turn)
	}
	cp := a.checkpoints[turn-1]

	for path, content := range cp.Files {
		if content == nil {
			os.Remove(path)
		} else if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("restore %s: %w", path, err)
		}
		a.freshness.Forget(path)
	}

	for path, snapshot := range a.fileOriginals {
		if _, inCheckpoint := cp.Files[path]; inCheckpoint {
			continue
		}
		if !snapshot.Existed {
			os.Remove(path)
		} else if err := os.WriteFile(path, snapshot.Content, 0644); err != nil {
			return fmt.Errorf("restore original %s: %w", path, err)
		}
		a.freshness.Forget(path)
	}

	trimmed := make(map[string]*FileSnapshot, len(cp.Files))
	for path := range cp.Files {
		if snap, ok := a.fileOriginals[path]; ok {
			trimmed[path] = snap
		}
	}
	a.fileOriginals = trimmed

	return nil
}

// RewindAll restores both code and conversation to the given checkpoint.
func (a *Agent) RewindAll(turn int) error {
	if err := a.RewindCode(turn); err != nil {
		return err
	}
	a.RewindConversation(turn)
	return nil
}

// SummarizeFrom keeps the conversation before the checkpoint intact and
// replaces everything from the checkpoint onward with an LLM-generated summary.
func (a *Agent) SummarizeFrom(ctx context.Context, turn int, term UI) error {
	if turn < 1 || turn > len(a.checkpoints) {
		return fmt.Errorf("invalid checkpoint turn: %d", turn)
	}
	cp := a.checkpoints[turn-1]

	if cp.MsgIndex >= len(a.conv) {
		term.PrintWarning("Nothing to summarize after this checkpoint.")
		return nil
	}

	later := toLLMMessages(transcript.NormalizeForAPI(transcript.Reorder(transcript.Normalize(a.conv[cp.MsgIndex:]))))
	history := serializeHistory(later)

	compactMessages := []llm.Message{
		llm.TextMessage("system", compactionPrompt()),
		llm.TextMessage("user", history),
	}

	term.PrintWarning("Summarizing from checkpoint...")
	resp, err := a.client.SendMessage(ctx, compactMessages, nil)
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}

	summary := ""
	if resp.Message.Content != nil {
		summary = *resp.Message.Content
	}

	a.conv = a.conv[:cp.MsgIndex]
	if summary != "" {
		a.conv = append(a.conv, userTextSourceMessage(
			"[Conversation summarized] Here is a summary of what happened:\n\n"+summary))
	}

	a.checkpoints = a.checkpoints[:turn-1]
	a.lastTokensUsed = 0
	term.PrintWarning("Summarized successfully.")
	return nil
}
