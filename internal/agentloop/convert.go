package agentloop

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kodecli/kode/internal/scheduler"
	"github.com/kodecli/kode/internal/tool"
	"github.com/kodecli/kode/internal/transcript"
	"github.com/kodecli/kode/llm"
)

func newMessageUUID() string {
	return uuid.New().String()
}

// assistantSourceMessage turns one LLM response turn into a single
// transcript.SourceMessage: an optional text block followed by one
// tool_use block per requested call, in model order.
func assistantSourceMessage(msg llm.Message) transcript.SourceMessage {
	sm := transcript.SourceMessage{UUID: newMessageUUID(), Role: transcript.RoleAssistant}
	if msg.Content != nil && *msg.Content != "" {
		sm.Blocks = append(sm.Blocks, transcript.Block{Type: transcript.BlockText, Text: *msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		sm.Blocks = append(sm.Blocks, transcript.Block{
			Type:      transcript.BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: json.RawMessage(tc.Function.Arguments),
		})
	}
	return sm
}

func userTextSourceMessage(text string) transcript.SourceMessage {
	return transcript.SourceMessage{UUID: newMessageUUID(), Role: transcript.RoleUser, Blocks: []transcript.Block{
		{Type: transcript.BlockText, Text: text},
	}}
}

func toolResultSourceMessage(r scheduler.ResultMessage) transcript.SourceMessage {
	return transcript.SourceMessage{UUID: newMessageUUID(), Role: transcript.RoleUser, Blocks: []transcript.Block{
		{Type: transcript.BlockToolResult, ToolUseID: r.ToolUseID, Content: r.Content, IsError: r.IsError},
	}}
}

func progressSourceMessage(p scheduler.ProgressMessage) transcript.SourceMessage {
	return transcript.SourceMessage{UUID: newMessageUUID(), Role: transcript.RoleProgress, Blocks: []transcript.Block{
		{Type: transcript.BlockText, ToolUseID: p.ToolUseID, Text: p.Content},
	}}
}

// toLLMMessages expands normalized API-shaped messages into the flat
// []llm.Message wire format: an assistant message keeps its text and tool
// calls together, but each tool_result block becomes its own "tool"-role
// message (llm.Message carries at most one tool_call_id).
func toLLMMessages(api []transcript.APIMessage) []llm.Message {
	var out []llm.Message
	for _, m := range api {
		switch m.Role {
		case transcript.RoleAssistant:
			var text string
			var calls []llm.ToolCall
			for _, b := range m.Blocks {
				switch b.Type {
				case transcript.BlockText:
					text += b.Text
				case transcript.BlockToolUse:
					calls = append(calls, llm.ToolCall{
						ID:   b.ToolUseID,
						Type: "function",
						Function: llm.FunctionCall{
							Name:      b.ToolName,
							Arguments: string(b.ToolInput),
						},
					})
				}
			}
			var contentPtr *string
			if text != "" {
				contentPtr = &text
			}
			out = append(out, llm.Message{Role: "assistant", Content: contentPtr, ToolCalls: calls})
		case transcript.RoleUser:
			for _, b := range m.Blocks {
				switch b.Type {
				case transcript.BlockToolResult:
					out = append(out, llm.ToolResultMessage(b.ToolUseID, b.Content))
				case transcript.BlockText:
					out = append(out, llm.TextMessage("user", b.Text))
				}
			}
		}
	}
	return out
}

// toolDefs projects the tool registry into the wire schema the LLM client expects.
func toolDefs(reg *tool.Registry) []llm.ToolDef {
	all := reg.All()
	defs := make([]llm.ToolDef, len(all))
	for i, d := range all {
		defs[i] = llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        d.Name(),
				Description: d.Description(),
				Parameters:  d.Schema(),
			},
		}
	}
	return defs
}

func buildRequests(calls []llm.ToolCall) []scheduler.Request {
	reqs := make([]scheduler.Request, len(calls))
	for i, tc := range calls {
		reqs[i] = scheduler.Request{
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			Input:     json.RawMessage(tc.Function.Arguments),
		}
	}
	return reqs
}
