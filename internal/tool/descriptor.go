// Package tool defines the contract every tool satisfies (schema validation,
// concurrency-safety, read-only and permission flags, and a streaming invoke),
// plus the registry that maps a tool name to its descriptor. The scheduler
// never reaches past this contract into a tool's internals.
package tool

import (
	"context"
	"encoding/json"

	"github.com/kodecli/kode/internal/errkind"
)

// ValidationKind classifies why Validate rejected an input.
type ValidationKind string

const (
	// KindSchema means the input does not satisfy the tool's JSON Schema.
	KindSchema ValidationKind = "schema"
	// KindSemantic means the input is schema-valid but nonsensical (e.g. an
	// empty required string, an unknown enum combination).
	KindSemantic ValidationKind = "semantic"
	// KindPrecondition means the input is valid but some precondition the
	// tool checks before running is not met (e.g. referenced file missing).
	KindPrecondition ValidationKind = "precondition"
)

// ValidationError is returned by Descriptor.Validate. A nil *ValidationError
// means the input is acceptable.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// EventKind tags a value yielded by Invoke.
type EventKind int

const (
	// EventProgress carries an intermediate status update; never the last event.
	EventProgress EventKind = iota
	// EventResult carries the terminal outcome; always the last event.
	EventResult
)

// Result is the terminal outcome of one Invoke call.
type Result struct {
	// Data is the raw result payload.
	Data string
	// RenderForAssistant is what goes back to the model as the tool_result
	// content. Usually equal to Data; tools may render a different (e.g.
	// truncated, redacted) view for the model than for the UI.
	RenderForAssistant string
	// IsError marks this result as a failure.
	IsError bool
	// Kind names why IsError is set, when the tool knows something more
	// specific than "tool-internal" (e.g. a stale-file conflict). Empty
	// means the scheduler should fall back to its own default for IsError
	// results.
	Kind errkind.Kind
}

// Event is one value yielded on a Descriptor.Invoke stream: zero or more
// EventProgress values followed by exactly one EventResult.
type Event struct {
	Kind     EventKind
	Progress string
	Result   Result
}

// FreshnessView is the subset of the file-freshness registry a tool needs.
// Defined here (not in package freshness) so neither package imports the
// other; freshness.Registry satisfies this interface structurally.
type FreshnessView interface {
	RecordRead(path string)
	RecordEdit(path string)
	Check(path string) (fresh bool, conflict bool)
}

// PermissionView is the subset of the permission gate a tool needs to inspect
// (e.g. a tool that behaves differently in plan mode). permission.Gate
// satisfies this interface structurally.
type PermissionView interface {
	Mode() string
}

// InvokeContext carries everything Invoke needs beyond its input: the
// cancellation token is the ctx parameter itself.
type InvokeContext struct {
	// AgentID identifies the sub-agent this call runs inside, empty at the
	// top level.
	AgentID string
	Freshness   FreshnessView
	Permissions PermissionView
}

// Descriptor is the contract every tool satisfies.
type Descriptor interface {
	Name() string
	Description() string
	// Schema returns the tool's JSON Schema for its input, used both to
	// advertise the tool to the model and to validate incoming calls.
	Schema() json.RawMessage

	// Validate is pure and synchronous. A non-nil result short-circuits the
	// call with a tool_result marked is_error=true.
	Validate(input json.RawMessage) *ValidationError

	// IsConcurrencySafe reports whether this call may run alongside other
	// concurrency-safe calls in the same batch. The scheduler calls it only
	// after Validate(input) has returned nil; the built-in kodetools tools
	// return a fixed value and do not look at input.
	IsConcurrencySafe(input json.RawMessage) bool

	// IsReadOnly is static: independent of input.
	IsReadOnly() bool

	// NeedsPermissions is static with respect to input shape, though the
	// permission gate is still consulted for the final decision.
	NeedsPermissions(input json.RawMessage) bool

	// MatchSubject projects input into the string the permission gate's
	// pattern matcher runs against (a file path, a full shell command line, a
	// qualified skill name). Tools with no natural subject return "".
	MatchSubject(input json.RawMessage) string

	// Invoke runs the tool. The returned channel yields zero or more
	// EventProgress values followed by exactly one EventResult, then closes.
	Invoke(ctx context.Context, input json.RawMessage, ictx InvokeContext) (<-chan Event, error)
}
