package kodetools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

type lsInput struct {
	Path string `json:"path"`
}

// ListTool lists a directory's entries with a file/directory indicator and size.
type ListTool struct {
	tool.Base
	workDir string
}

var lsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Directory path to list (default: working directory)"}
	}
}`)

// NewListTool constructs the List (ls) descriptor.
func NewListTool(workDir string) (*ListTool, error) {
	base, err := tool.NewBase("List", "List directory contents with file/directory indicators and sizes.",
		lsSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &ListTool{Base: base, workDir: workDir}, nil
}

func (t *ListTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *ListTool) MatchSubject(input json.RawMessage) string {
	var p lsInput
	_ = json.Unmarshal(input, &p)
	return p.Path
}

func (t *ListTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params lsInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}

	dir := t.workDir
	if params.Path != "" {
		var err error
		dir, err = ValidatePath(t.workDir, params.Path)
		if err != nil {
			return fail(err.Error(), errkind.ToolInternal)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fail(fmt.Sprintf("read directory: %s", err), errkind.ToolInternal)
	}

	var out strings.Builder
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(&out, "  %s/\n", entry.Name())
		} else {
			fmt.Fprintf(&out, "  %-40s %s\n", entry.Name(), formatSize(info.Size()))
		}
	}

	if ictx.Freshness != nil {
		ictx.Freshness.RecordRead(dir)
	}

	if out.Len() == 0 {
		return ok("Directory is empty.")
	}
	return ok(out.String())
}
