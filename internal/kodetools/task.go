package kodetools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

// TaskInput is the per-task shape accepted by WriteTasksTool (no ID or
// timestamps — those are assigned by the callback).
type TaskInput struct {
	Content     string `json:"content"`
	Description string `json:"description"`
	ActiveForm  string `json:"active_form"`
}

// TaskCallbacks breaks the circular dependency between kodetools and the
// agent loop that owns the actual task list.
type TaskCallbacks struct {
	WriteTasks func(tasks []TaskInput) string
	UpdateTask func(id int, status string) error
	ReadTasks  func() string
}

type writeTasksInput struct {
	Tasks []TaskInput `json:"tasks"`
}

// WriteTasksTool replaces the whole task plan. It mutates shared
// conversation state, so it runs as a barrier like Edit/Write.
type WriteTasksTool struct {
	tool.Base
	cb TaskCallbacks
}

var writeTasksSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"content": {"type": "string"},
					"description": {"type": "string"},
					"active_form": {"type": "string"}
				},
				"required": ["content", "description"]
			}
		}
	},
	"required": ["tasks"]
}`)

// NewWriteTasksTool constructs the WriteTasks descriptor.
func NewWriteTasksTool(cb TaskCallbacks) (*WriteTasksTool, error) {
	base, err := tool.NewBase("write_tasks", "Replace the current task plan with a new ordered list of tasks.",
		writeTasksSchema, false, true)
	if err != nil {
		return nil, err
	}
	return &WriteTasksTool{Base: base, cb: cb}, nil
}

func (t *WriteTasksTool) IsConcurrencySafe(json.RawMessage) bool { return false }

func (t *WriteTasksTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params writeTasksInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if len(params.Tasks) == 0 {
		return fail("tasks array is required and must not be empty", errkind.ToolInternal)
	}
	for i, tk := range params.Tasks {
		if tk.Content == "" {
			return fail(fmt.Sprintf("task %d: content is required", i+1), errkind.ToolInternal)
		}
		if tk.Description == "" {
			return fail(fmt.Sprintf("task %d: description is required", i+1), errkind.ToolInternal)
		}
	}
	if t.cb.WriteTasks == nil {
		return fail("task callbacks not configured", errkind.ToolInternal)
	}
	return ok(t.cb.WriteTasks(params.Tasks))
}

type updateTaskInput struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// UpdateTaskTool flips one task's status and returns the refreshed summary.
type UpdateTaskTool struct {
	tool.Base
	cb TaskCallbacks
}

var updateTaskSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"id": {"type": "integer"},
		"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
	},
	"required": ["id", "status"]
}`)

// NewUpdateTaskTool constructs the UpdateTask descriptor.
func NewUpdateTaskTool(cb TaskCallbacks) (*UpdateTaskTool, error) {
	base, err := tool.NewBase("update_task", "Update the status of one task by id.",
		updateTaskSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &UpdateTaskTool{Base: base, cb: cb}, nil
}

func (t *UpdateTaskTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *UpdateTaskTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	var params updateTaskInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail(fmt.Sprintf("invalid input: %s", err), errkind.ToolInternal)
	}
	if params.ID == 0 || params.Status == "" {
		return fail("id and status are required", errkind.ToolInternal)
	}
	if t.cb.UpdateTask == nil {
		return fail("task callbacks not configured", errkind.ToolInternal)
	}
	if err := t.cb.UpdateTask(params.ID, params.Status); err != nil {
		return fail(err.Error(), errkind.ToolInternal)
	}
	return ok(t.cb.ReadTasks())
}

// ReadTasksTool returns the current task list, rarely needed since it's
// already surfaced in the system prompt and in update_task's own result.
type ReadTasksTool struct {
	tool.Base
	cb TaskCallbacks
}

var readTasksSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// NewReadTasksTool constructs the ReadTasks descriptor.
func NewReadTasksTool(cb TaskCallbacks) (*ReadTasksTool, error) {
	base, err := tool.NewBase("read_tasks", "Read the current task list.", readTasksSchema, true, false)
	if err != nil {
		return nil, err
	}
	return &ReadTasksTool{Base: base, cb: cb}, nil
}

func (t *ReadTasksTool) IsConcurrencySafe(json.RawMessage) bool { return true }

func (t *ReadTasksTool) Invoke(ctx context.Context, input json.RawMessage, ictx tool.InvokeContext) (<-chan tool.Event, error) {
	if t.cb.ReadTasks == nil {
		return fail("task callbacks not configured", errkind.ToolInternal)
	}
	result := t.cb.ReadTasks()
	return ok(result + "\n\n(Note: task state is already in your system prompt. update_task also returns the current list. You rarely need read_tasks.)")
}
