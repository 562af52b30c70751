package agentloop

import (
	"github.com/kodecli/kode/internal/transcript"
	"github.com/kodecli/kode/llm"
)

// MessageHistory projects the conversation's normalized API view into the
// teacher's flat []llm.Message shape, for the terminal's replay renderer.
func (a *Agent) MessageHistory() []llm.Message {
	return toLLMMessages(transcript.NormalizeForAPI(transcript.Reorder(transcript.Normalize(a.conv))))
}

// MessageCount returns the number of source messages in the conversation.
func (a *Agent) MessageCount() int {
	return len(a.conv)
}
