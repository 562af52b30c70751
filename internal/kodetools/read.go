package kodetools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

const maxReadLines = 500

type readInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ReadTool reads a file's contents in cat -n style, recording a freshness
// baseline for the path so a later edit-class tool can detect an out-of-band
// change.
type ReadTool struct {
	tool.Base
	workDir string
}

var readSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "File path to read"},
		"start_line": {"type": "integer", "description": "First line to read (1-indexed, default: 1)"},
		"end_line": {"type": "integer", "description": "Last line to read (1-indexed, inclusive)"}
	},
	"required": ["path"]
}`)

// NewReadTool constructs the Read descriptor.
func NewReadTool(workDir string) (*ReadTool, error) {
	base, err := tool.NewBase("Read",
		"Read file contents with line numbers (cat -n format, 1-indexed). Use start_line/end_line for large files.",
		readSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &ReadTool{Base: base, workDir: workDir}, nil
}

func (t *ReadTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *ReadTool) MatchSubject(input json.RawMessage) string {
	var p readInput
	_ = json.Unmarshal(input, &p)
	return p.Path
}

func (t *ReadTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params readInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}

	absPath, err := ValidatePath(t.workDir, params.Path)
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return fail(fmt.Sprintf("open file: %s", err), errkind.ToolInternal)
	}
	defer file.Close()

	startLine := params.StartLine
	if startLine <= 0 {
		startLine = 1
	}
	endLine := params.EndLine

	var out strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

	lineNum, linesRead, totalLines := 0, 0, 0
	for scanner.Scan() {
		lineNum++
		totalLines = lineNum

		if lineNum < startLine {
			continue
		}
		if endLine > 0 && lineNum > endLine {
			continue
		}

		linesRead++
		if endLine <= 0 && linesRead > maxReadLines {
			for scanner.Scan() {
				lineNum++
				totalLines = lineNum
			}
			fmt.Fprintf(&out, "\n... (file has %d total lines, showing lines %d-%d. Use start_line/end_line to read more.)",
				totalLines, startLine, startLine+maxReadLines-1)
			break
		}

		fmt.Fprintf(&out, "%4d │ %s\n", lineNum, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fail(fmt.Sprintf("read file: %s", err), errkind.ToolInternal)
	}

	if ictx.Freshness != nil {
		ictx.Freshness.RecordRead(absPath)
	}

	if out.Len() == 0 {
		return ok("File is empty.")
	}
	return ok(out.String())
}
