package kodetools

import (
	"fmt"

	"github.com/kodecli/kode/internal/tool"
)

// Register builds every built-in tool descriptor rooted at workDir and adds
// it to reg. explore and the task tools are wired in only if their
// respective callbacks are non-nil/non-zero, since both depend on the agent
// loop that owns sub-agent spawning and the task list.
func Register(reg *tool.Registry, workDir string, exploreFn ExploreFunc, taskCB TaskCallbacks) error {
	builders := []func() (tool.Descriptor, error){
		func() (tool.Descriptor, error) { return NewReadTool(workDir) },
		func() (tool.Descriptor, error) { return NewGlobTool(workDir) },
		func() (tool.Descriptor, error) { return NewGrepTool(workDir) },
		func() (tool.Descriptor, error) { return NewListTool(workDir) },
		func() (tool.Descriptor, error) { return NewEditTool(workDir) },
		func() (tool.Descriptor, error) { return NewWriteTool(workDir) },
		func() (tool.Descriptor, error) { return NewBashTool(workDir) },
	}
	for _, build := range builders {
		d, err := build()
		if err != nil {
			return fmt.Errorf("build tool: %w", err)
		}
		reg.Register(d)
	}

	if exploreFn != nil {
		d, err := NewExploreTool(exploreFn)
		if err != nil {
			return fmt.Errorf("build Explore tool: %w", err)
		}
		reg.Register(d)
	}

	if taskCB.WriteTasks != nil || taskCB.UpdateTask != nil || taskCB.ReadTasks != nil {
		wt, err := NewWriteTasksTool(taskCB)
		if err != nil {
			return fmt.Errorf("build write_tasks tool: %w", err)
		}
		ut, err := NewUpdateTaskTool(taskCB)
		if err != nil {
			return fmt.Errorf("build update_task tool: %w", err)
		}
		rt, err := NewReadTasksTool(taskCB)
		if err != nil {
			return fmt.Errorf("build read_tasks tool: %w", err)
		}
		reg.Register(wt)
		reg.Register(ut)
		reg.Register(rt)
	}

	return nil
}

// NewReadOnlyRegistry builds a registry containing only read-only
// investigation tools (Read, Glob, Grep, List), used by sub-agents spawned
// from the Explore tool so they can't mutate the filesystem.
func NewReadOnlyRegistry(workDir string) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	read, err := NewReadTool(workDir)
	if err != nil {
		return nil, err
	}
	glob, err := NewGlobTool(workDir)
	if err != nil {
		return nil, err
	}
	grep, err := NewGrepTool(workDir)
	if err != nil {
		return nil, err
	}
	list, err := NewListTool(workDir)
	if err != nil {
		return nil, err
	}
	reg.Register(read)
	reg.Register(glob)
	reg.Register(grep)
	reg.Register(list)
	return reg, nil
}
