package kodetools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

// ExploreFunc runs a read-only sub-agent over the given task description and
// returns its summary. Injected rather than imported directly, breaking the
// circular dependency between kodetools and the agent loop that spawns
// sub-agents.
type ExploreFunc func(ctx context.Context, task string) (string, error)

type exploreInput struct {
	Task string `json:"task"`
}

// ExploreTool delegates a task to a read-only sub-agent (its own Read, Glob,
// Grep, List tools only) and returns a summary, for open-ended codebase
// investigation that would otherwise burn many individual tool calls in the
// parent conversation.
type ExploreTool struct {
	tool.Base
	fn ExploreFunc
}

var exploreSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {"type": "string", "description": "What to investigate, phrased as a self-contained question"}
	},
	"required": ["task"]
}`)

// NewExploreTool constructs the Explore descriptor.
func NewExploreTool(fn ExploreFunc) (*ExploreTool, error) {
	base, err := tool.NewBase("Explore",
		"Delegate an open-ended codebase investigation to a read-only sub-agent and return its findings.",
		exploreSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &ExploreTool{Base: base, fn: fn}, nil
}

func (t *ExploreTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *ExploreTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params exploreInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if params.Task == "" {
		return fail("task is required", errkind.ToolInternal)
	}
	if t.fn == nil {
		return fail("explore sub-agent not configured", errkind.ToolInternal)
	}

	summary, err := t.fn(ctx, params.Task)
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}
	return ok(summary)
}
