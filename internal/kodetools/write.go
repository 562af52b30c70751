package kodetools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteTool creates or overwrites a file with the given content. Like Edit,
// it is concurrency-unsafe and freshness-checked when the target already
// exists.
type WriteTool struct {
	tool.Base
	workDir string
}

var writeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "File path to write"},
		"content": {"type": "string", "description": "Full file content"}
	},
	"required": ["path", "content"]
}`)

// NewWriteTool constructs the Write descriptor.
func NewWriteTool(workDir string) (*WriteTool, error) {
	base, err := tool.NewBase("Write", "Create or overwrite a file with the given content.",
		writeSchema, false, true)
	if err != nil {
		return nil, err
	}
	return &WriteTool{Base: base, workDir: workDir}, nil
}

func (t *WriteTool) IsConcurrencySafe(json.RawMessage) bool { return false }

func (t *WriteTool) MatchSubject(input json.RawMessage) string {
	var p writeInput
	_ = json.Unmarshal(input, &p)
	return p.Path
}

func (t *WriteTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params writeInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if params.Path == "" {
		return fail("path is required", errkind.ToolInternal)
	}

	absPath, err := ValidatePath(t.workDir, params.Path)
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}

	if _, statErr := os.Stat(absPath); statErr == nil && ictx.Freshness != nil {
		if fresh, conflict := ictx.Freshness.Check(absPath); !fresh || conflict {
			return fail(fmt.Sprintf(
				"%s has changed on disk since it was last read; re-read it before overwriting", params.Path),
				errkind.StaleFile)
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fail(fmt.Sprintf("create directory: %s", err), errkind.ToolInternal)
	}
	if err := AtomicWrite(absPath, []byte(params.Content), 0644); err != nil {
		return fail(fmt.Sprintf("write file: %s", err), errkind.ToolInternal)
	}

	if ictx.Freshness != nil {
		ictx.Freshness.RecordEdit(absPath)
	}

	return ok(fmt.Sprintf("Wrote %s", params.Path))
}
