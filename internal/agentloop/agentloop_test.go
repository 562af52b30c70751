package agentloop

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kodecli/kode/llm"
	"github.com/kodecli/kode/ui"
)

// mockLLMClient implements llm.LLMClient for testing.
type mockLLMClient struct {
	responses []llm.Response
	callCount int32
}

func (m *mockLLMClient) SendMessage(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef) (*llm.Response, error) {
	idx := int(atomic.AddInt32(&m.callCount, 1)) - 1
	if idx >= len(m.responses) {
		return &llm.Response{Message: llm.TextMessage("assistant", "done"), FinishReason: "stop"}, nil
	}
	return &m.responses[idx], nil
}

func (m *mockLLMClient) StreamMessage(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	idx := int(atomic.AddInt32(&m.callCount, 1)) - 1
	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		if idx >= len(m.responses) {
			ch <- llm.StreamEvent{TextDelta: "done"}
			ch <- llm.StreamEvent{FinishReason: "stop", Done: true}
			return
		}

		resp := m.responses[idx]
		if resp.Message.Content != nil {
			ch <- llm.StreamEvent{TextDelta: *resp.Message.Content}
		}
		for i, tc := range resp.Message.ToolCalls {
			ch <- llm.StreamEvent{
				ToolCallDeltas: []llm.ToolCallDelta{{
					Index: i,
					ID:    tc.ID,
					Type:  "function",
					Function: struct {
						Name      string `json:"name,omitempty"`
						Arguments string `json:"arguments,omitempty"`
					}{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				}},
			}
		}
		ch <- llm.StreamEvent{FinishReason: resp.FinishReason, Done: true}
	}()
	return ch, nil
}

func newTestAgent(t *testing.T, client llm.LLMClient, contextWindow int) *Agent {
	t.Helper()
	dir := t.TempDir()
	ag, err := New(client, dir, contextWindow, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { ag.Close() })
	return ag
}

func TestAgentSingleTurn(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Response{
		{Message: llm.TextMessage("assistant", "Hello! I can help you with your code."), FinishReason: "stop"},
	}}

	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	if err := ag.Run(context.Background(), "hello", term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// user + assistant
	if len(ag.conv) != 2 {
		t.Errorf("expected 2 conversation messages, got %d", len(ag.conv))
	}
}

func TestAgentToolUseLoop(t *testing.T) {
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	mock := &mockLLMClient{responses: []llm.Response{
		{
			Message: llm.AssistantMessage(nil, []llm.ToolCall{
				{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "Glob", Arguments: string(globArgs)}},
			}),
			FinishReason: "tool_calls",
		},
		{Message: llm.TextMessage("assistant", "I found some Go files."), FinishReason: "stop"},
	}}

	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	if err := ag.Run(context.Background(), "find go files", term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// user + assistant(tool_call) + tool_result + assistant(final) = 4
	if len(ag.conv) != 4 {
		t.Errorf("expected 4 conversation messages, got %d", len(ag.conv))
	}
}

func TestAgentMaxIterations(t *testing.T) {
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	resp := llm.Response{
		Message: llm.AssistantMessage(nil, []llm.ToolCall{
			{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "Glob", Arguments: string(globArgs)}},
		}),
		FinishReason: "tool_calls",
	}

	responses := make([]llm.Response, MaxIterationsPerTurn+5)
	for i := range responses {
		responses[i] = resp
		responses[i].Message.ToolCalls[0].ID = "call_" + string(rune('a'+i%26))
	}

	mock := &mockLLMClient{responses: responses}
	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	err := ag.Run(context.Background(), "infinite loop", term)
	if err == nil {
		t.Fatal("expected max iterations error")
	}
	if got := err.Error(); got != "agent loop exceeded maximum iterations (50)" {
		t.Errorf("unexpected error: %s", got)
	}
}

func TestAgentConcurrentToolExecution(t *testing.T) {
	globArgs, _ := json.Marshal(map[string]string{"pattern": "*.go"})
	grepArgs, _ := json.Marshal(map[string]string{"pattern": "func"})

	mock := &mockLLMClient{responses: []llm.Response{
		{
			Message: llm.AssistantMessage(nil, []llm.ToolCall{
				{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "Glob", Arguments: string(globArgs)}},
				{ID: "call_2", Type: "function", Function: llm.FunctionCall{Name: "Grep", Arguments: string(grepArgs)}},
			}),
			FinishReason: "tool_calls",
		},
		{Message: llm.TextMessage("assistant", "Found results."), FinishReason: "stop"},
	}}

	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	if err := ag.Run(context.Background(), "search code", term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// user + assistant(2 tool calls) + 2 tool results + assistant(final) = 5
	if len(ag.conv) != 5 {
		t.Errorf("expected 5 conversation messages, got %d", len(ag.conv))
	}
}

func TestCompaction(t *testing.T) {
	summaryText := "Summary: user asked to find Go files."
	mock := &mockLLMClient{responses: []llm.Response{
		{Message: llm.TextMessage("assistant", summaryText), FinishReason: "stop"},
		{Message: llm.TextMessage("assistant", "Here is my response."), FinishReason: "stop"},
	}}

	// contextWindow=500 tokens, system prompt alone is large enough to exceed 80% of 500
	ag := newTestAgent(t, mock, 500)
	term := ui.NewTerminal()

	longContent := strings.Repeat("This is a long message to fill tokens. ", 100)
	ag.conv = append(ag.conv, userTextSourceMessage("find go files"))
	ag.conv = append(ag.conv, assistantSourceMessage(llm.TextMessage("assistant", longContent)))
	ag.conv = append(ag.conv, userTextSourceMessage("now what?"))

	if err := ag.Run(context.Background(), "continue", term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// After compaction: summary + the new user message + assistant response, should stay small
	if len(ag.conv) > 5 {
		t.Errorf("expected compacted conversation length <= 5, got %d", len(ag.conv))
	}
}

func TestNoCompactionUnderLimit(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Response{
		{Message: llm.TextMessage("assistant", "Hello!"), FinishReason: "stop"},
	}}

	ag := newTestAgent(t, mock, 1000000)
	term := ui.NewTerminal()

	if err := ag.Run(context.Background(), "hello", term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ag.conv) != 2 {
		t.Errorf("expected 2 conversation messages (no compaction), got %d", len(ag.conv))
	}
	if mock.callCount != 1 {
		t.Errorf("expected 1 LLM call (no compaction), got %d", mock.callCount)
	}
}

func TestCompactCommand(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Response{
		{Message: llm.TextMessage("assistant", "Summary of conversation."), FinishReason: "stop"},
	}}

	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	ag.conv = append(ag.conv, userTextSourceMessage("hello"))
	ag.conv = append(ag.conv, assistantSourceMessage(llm.TextMessage("assistant", "Hi there! How can I help?")))
	ag.conv = append(ag.conv, userTextSourceMessage("find bugs"))

	before := len(ag.conv)
	if err := ag.Compact(context.Background(), term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ag.conv) >= before {
		t.Errorf("expected fewer messages after compaction, got %d (was %d)", len(ag.conv), before)
	}
	if mock.callCount != 1 {
		t.Errorf("expected 1 LLM call for compaction, got %d", mock.callCount)
	}
}

func TestCompactEmptyConversation(t *testing.T) {
	mock := &mockLLMClient{}
	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	if err := ag.Compact(context.Background(), term); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.callCount != 0 {
		t.Errorf("expected 0 LLM calls for empty conversation, got %d", mock.callCount)
	}
	if len(ag.conv) != 0 {
		t.Errorf("expected empty conversation, got %d", len(ag.conv))
	}
}

func TestClear(t *testing.T) {
	mock := &mockLLMClient{}
	ag := newTestAgent(t, mock, 128000)
	term := ui.NewTerminal()

	ag.conv = append(ag.conv, userTextSourceMessage("hello"))
	ag.conv = append(ag.conv, assistantSourceMessage(llm.TextMessage("assistant", "Hi!")))
	ag.conv = append(ag.conv, userTextSourceMessage("do stuff"))

	if len(ag.conv) != 3 {
		t.Fatalf("expected 3 messages before clear, got %d", len(ag.conv))
	}

	ag.Clear(term)

	if len(ag.conv) != 0 {
		t.Errorf("expected empty conversation after clear, got %d", len(ag.conv))
	}
	if mock.callCount != 0 {
		t.Errorf("expected 0 LLM calls for clear, got %d", mock.callCount)
	}
}
