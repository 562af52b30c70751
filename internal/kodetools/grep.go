package kodetools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

const maxGrepResults = 50

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Include string `json:"include"`
}

// GrepTool searches file contents with an RE2 regular expression.
type GrepTool struct {
	tool.Base
	workDir string
}

var grepSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "RE2 regular expression to search for"},
		"path": {"type": "string", "description": "Directory to search in (default: working directory)"},
		"include": {"type": "string", "description": "Glob pattern to filter filenames (e.g., '*.go', '*.{ts,tsx}')"}
	},
	"required": ["pattern"]
}`)

// NewGrepTool constructs the Grep descriptor.
func NewGrepTool(workDir string) (*GrepTool, error) {
	base, err := tool.NewBase("Grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers.`,
		grepSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &GrepTool{Base: base, workDir: workDir}, nil
}

func (t *GrepTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *GrepTool) MatchSubject(input json.RawMessage) string {
	var p grepInput
	_ = json.Unmarshal(input, &p)
	return p.Path
}

func (t *GrepTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params grepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return fail(fmt.Sprintf("invalid regex (RE2 syntax): %s", err), errkind.ToolInternal)
	}

	searchDir := t.workDir
	if params.Path != "" {
		searchDir, err = ValidatePath(t.workDir, params.Path)
		if err != nil {
			return fail(err.Error(), errkind.ToolInternal)
		}
	}

	var results []string
	totalMatches := 0

	err = filepath.WalkDir(searchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if params.Include != "" {
			if matched, _ := filepath.Match(params.Include, d.Name()); !matched {
				return nil
			}
		}
		if isBinaryFile(path) {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		rel, _ := filepath.Rel(t.workDir, path)
		rel = filepath.ToSlash(rel)

		scanner := bufio.NewScanner(file)
		lineNum := 0
		matchedFile := false
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				matchedFile = true
				totalMatches++
				if len(results) < maxGrepResults {
					results = append(results, fmt.Sprintf("%s:%d: %s", rel, lineNum, truncateLine(line, 200)))
				}
			}
		}
		if matchedFile && ictx.Freshness != nil {
			ictx.Freshness.RecordRead(path)
		}
		return nil
	})
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}

	if len(results) == 0 {
		return ok("No matches found.")
	}

	var out strings.Builder
	for _, r := range results {
		out.WriteString(r)
		out.WriteByte('\n')
	}
	if totalMatches > maxGrepResults {
		fmt.Fprintf(&out, "\n... and %d more matches", totalMatches-maxGrepResults)
	}
	return ok(out.String())
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return true
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
