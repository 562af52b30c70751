package kodetools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

const (
	defaultBashTimeout = 30
	maxBashTimeout      = 120
	maxBashOutputChars  = 10000
)

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// BashTool runs a shell command. It is concurrency-unsafe: shell commands can
// touch arbitrary shared state (the filesystem, other processes), so it
// always runs alone as a barrier.
type BashTool struct {
	tool.Base
	workDir string
}

var bashSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "Shell command to execute"},
		"timeout": {"type": "integer", "description": "Timeout in seconds (default 30, max 120)"}
	},
	"required": ["command"]
}`)

// NewBashTool constructs the Bash descriptor.
func NewBashTool(workDir string) (*BashTool, error) {
	base, err := tool.NewBase("Bash", "Execute a shell command in the working directory.",
		bashSchema, false, true)
	if err != nil {
		return nil, err
	}
	return &BashTool{Base: base, workDir: workDir}, nil
}

func (t *BashTool) IsConcurrencySafe(json.RawMessage) bool { return false }

func (t *BashTool) MatchSubject(input json.RawMessage) string {
	var p bashInput
	_ = json.Unmarshal(input, &p)
	return p.Command
}

func (t *BashTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params bashInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if params.Command == "" {
		return fail("command is required", errkind.ToolInternal)
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultBashTimeout
	}
	if timeout > maxBashTimeout {
		timeout = maxBashTimeout
	}

	ch := make(chan tool.Event, 1)
	go func() {
		defer close(ch)

		runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()

		var cmd *exec.Cmd
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(runCtx, "cmd", "/C", params.Command)
		} else {
			cmd = exec.CommandContext(runCtx, "bash", "-c", params.Command)
		}
		cmd.Dir = t.workDir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		combined := stdout.String()
		if stderr.Len() > 0 {
			if combined != "" {
				combined += "\n"
			}
			combined += stderr.String()
		}
		combined = truncateOutput(combined)

		if runCtx.Err() == context.DeadlineExceeded {
			ch <- tool.Event{Kind: tool.EventResult, Result: tool.Result{
				Data:               fmt.Sprintf("command timed out after %ds\n%s", timeout, combined),
				RenderForAssistant: fmt.Sprintf("command timed out after %ds\n%s", timeout, combined),
				IsError:            true,
				Kind:               errkind.ToolInternal,
			}}
			return
		}

		if err != nil {
			if exitErr, okErr := err.(*exec.ExitError); okErr {
				msg := fmt.Sprintf("exit code %d\n%s", exitErr.ExitCode(), combined)
				ch <- tool.Event{Kind: tool.EventResult, Result: tool.Result{
					Data: msg, RenderForAssistant: msg, IsError: true, Kind: errkind.ToolInternal,
				}}
				return
			}
			ch <- tool.Event{Kind: tool.EventResult, Result: tool.Result{
				Data: err.Error(), RenderForAssistant: err.Error(), IsError: true, Kind: errkind.ToolInternal,
			}}
			return
		}

		if combined == "" {
			combined = "(no output)"
		}
		ch <- tool.Event{Kind: tool.EventResult, Result: tool.Result{Data: combined, RenderForAssistant: combined}}
	}()
	return ch, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxBashOutputChars {
		return s
	}
	return s[:maxBashOutputChars] + fmt.Sprintf("\n... (output truncated, %d total chars)", len(s))
}
