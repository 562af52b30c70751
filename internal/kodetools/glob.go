package kodetools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

const maxGlobResults = 100

type globInput struct {
	Pattern string `json:"pattern"`
}

// GlobTool matches files under the working directory by name pattern,
// supporting "**" for recursive directory matching.
type GlobTool struct {
	tool.Base
	workDir string
}

var globSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "Glob pattern to match files (e.g., '**/*.go', 'src/**/*.ts')"}
	},
	"required": ["pattern"]
}`)

// NewGlobTool constructs the Glob descriptor.
func NewGlobTool(workDir string) (*GlobTool, error) {
	base, err := tool.NewBase("Glob",
		`Fast file pattern matching tool. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to the working directory.`,
		globSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &GlobTool{Base: base, workDir: workDir}, nil
}

func (t *GlobTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *GlobTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params globInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}

	var matches []string
	err := filepath.WalkDir(t.workDir, func(path string, d os.DirEntry, err error) error {
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
			if d.Type()&os.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(t.workDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		matched, err := matchGlob(params.Pattern, rel)
		if err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
		if matched {
			matches = append(matches, rel)
			if ictx.Freshness != nil {
				ictx.Freshness.RecordRead(path)
			}
		}
		return nil
	})
	if err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}

	if len(matches) == 0 {
		return ok("No files matched the pattern.")
	}

	var out strings.Builder
	limit := len(matches)
	truncated := false
	if limit > maxGlobResults {
		limit = maxGlobResults
		truncated = true
	}
	for _, m := range matches[:limit] {
		out.WriteString(m)
		out.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&out, "\n... and %d more matches", len(matches)-maxGlobResults)
	}
	return ok(out.String())
}

func matchGlob(pattern, name string) (bool, error) {
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, name)
	}
	return filepath.Match(pattern, name)
}

func matchDoublestar(pattern, name string) (bool, error) {
	parts := strings.Split(pattern, "**")
	if len(parts) != 2 {
		return filepath.Match(pattern, name)
	}

	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix == "" && suffix == "" {
		return true, nil
	}
	if prefix == "" {
		segments := strings.Split(name, "/")
		for i := range segments {
			subpath := strings.Join(segments[i:], "/")
			if matched, _ := filepath.Match(suffix, subpath); matched {
				return true, nil
			}
			if matched, _ := filepath.Match(suffix, segments[len(segments)-1]); matched {
				return true, nil
			}
		}
		return false, nil
	}
	if suffix == "" {
		return strings.HasPrefix(name, prefix+"/") || name == prefix, nil
	}
	if !strings.HasPrefix(name, prefix+"/") && name != prefix {
		return false, nil
	}
	rest := strings.TrimPrefix(name, prefix+"/")
	return matchDoublestar("**/"+suffix, rest)
}
