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

type editInput struct {
	Path   string `json:"path"`
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`
}

// EditTool replaces a unique occurrence of old_str with new_str in an
// existing file. It is concurrency-unsafe (a barrier) and consults the
// freshness registry before writing: an out-of-band change to the target
// since it was last read fails the call rather than silently clobbering it.
type EditTool struct {
	tool.Base
	workDir string
}

var editSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "File path to edit"},
		"old_str": {"type": "string", "description": "Exact text to replace; must match exactly one location"},
		"new_str": {"type": "string", "description": "Replacement text"}
	},
	"required": ["path", "old_str", "new_str"]
}`)

// NewEditTool constructs the Edit descriptor.
func NewEditTool(workDir string) (*EditTool, error) {
	base, err := tool.NewBase("Edit",
		"Replace a unique occurrence of old_str with new_str in an existing file.",
		editSchema, false, true)
	if err != nil {
		return nil, err
	}
	return &EditTool{Base: base, workDir: workDir}, nil
}

func (t *EditTool) IsConcurrencySafe(json.RawMessage) bool { return false }

func (t *EditTool) MatchSubject(input json.RawMessage) string {
	var p editInput
	_ = json.Unmarshal(input, &p)
	return p.Path
}

func (t *EditTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params editInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if params.Path == "" || params.OldStr == "" {
		return fail("path and old_str are required", errkind.ToolInternal)
	}

	absPath, err := ValidatePath(t.workDir, params.Path)
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}

	if ictx.Freshness != nil {
		if fresh, conflict := ictx.Freshness.Check(absPath); !fresh || conflict {
			return fail(fmt.Sprintf(
				"%s has changed on disk since it was last read; re-read it before editing", params.Path),
				errkind.StaleFile)
		}
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return fail(fmt.Sprintf("read file: %s", err), errkind.ToolInternal)
	}
	content := string(raw)

	count := strings.Count(content, params.OldStr)
	if count == 0 {
		return fail("old_str not found in file", errkind.ToolInternal)
	}
	if count > 1 {
		lines := matchingLines(content, params.OldStr)
		return fail(fmt.Sprintf("old_str is ambiguous: matches %d locations (lines %s); include more surrounding context", count, lines),
			errkind.ToolInternal)
	}

	newContent := strings.Replace(content, params.OldStr, params.NewStr, 1)

	info, err := os.Stat(absPath)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	if err := AtomicWrite(absPath, []byte(newContent), mode); err != nil {
		return fail(fmt.Sprintf("write file: %s", err), errkind.ToolInternal)
	}

	if ictx.Freshness != nil {
		ictx.Freshness.RecordEdit(absPath)
	}

	return ok(fmt.Sprintf("Edited %s", params.Path))
}

func matchingLines(content, needle string) string {
	var lines []string
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, needle) {
			lines = append(lines, fmt.Sprintf("%d", i+1))
		}
	}
	return strings.Join(lines, ", ")
}
