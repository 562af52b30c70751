// Package transcript implements the message normalizer and ordering rules:
// flattening multi-block assistant messages into one normalized message per
// block with deterministic uuids, re-splicing tool_results after their
// originating tool_use, deriving the UI's unresolved/in-progress/errored id
// sets, computing the append-only static-render prefix, and preparing the
// next-turn API payload.
package transcript

// Sentinel strings are bit-exact: the model and the UI both do equality
// checks against them, so changing so much as a character breaks callers
// that pattern-match tool_result bodies.
const (
	InterruptMessage           = "[Request interrupted by user]"
	InterruptMessageForToolUse = "[Request interrupted by user for tool use]"
	SiblingCancelledBody       = "<tool_use_error>Sibling tool call errored</tool_use_error>"

	queuedProgressInner = "Waiting…"
)

// WrapProgress wraps text the way every progress message's single text block
// is wrapped before it reaches the UI.
func WrapProgress(text string) string {
	return "<tool-progress>" + text + "</tool-progress>"
}

// QueuedProgressBody is the fixed body of a "this call hasn't started yet"
// progress event (P6: it must never count as "in progress").
var QueuedProgressBody = WrapProgress(queuedProgressInner)
