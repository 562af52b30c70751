// Package scheduler implements the Tool-Use Queue: the centerpiece barrier +
// FIFO concurrency policy that drives one assistant message's tool_use
// batch from Pending through Settled, consulting the permission gate per
// call, throttling progress, and emitting tool_results in input order
// regardless of completion order.
package scheduler

import (
	"encoding/json"

	"github.com/kodecli/kode/internal/errkind"
)

// Request is one tool-use the model asked for.
type Request struct {
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
}

// ResultMessage is a settled tool-use's terminal tool_result.
type ResultMessage struct {
	ToolUseID   string
	Content     string
	IsError     bool
	Interrupted bool
	Kind        errkind.Kind
}

// ProgressMessage is a never-sent-to-the-model status update for the UI.
type ProgressMessage struct {
	ToolUseID         string
	SiblingToolUseIDs []string
	Content           string
}

// EventKind tags a value on the Run's output stream.
type EventKind int

const (
	EventProgress EventKind = iota
	EventResult
)

// Event is one value on Run's output stream.
type Event struct {
	Kind     EventKind
	Progress ProgressMessage
	Result   ResultMessage
}

// callState is the position of one call in the spec.md §4.4 state machine:
// Pending -> Validating -> Gated -> Queued -> Running -> Settled.
type callState int

const (
	statePending callState = iota
	stateValidating
	stateGated
	stateQueued
	stateRunning
	stateSettled
)
