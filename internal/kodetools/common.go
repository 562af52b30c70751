package kodetools

import (
	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/tool"
)

// result builds a single-element, already-closed event stream: every
// kodetools tool except Bash returns its outcome this way. Bash sends its
// single result from a goroutine once the command finishes; no kodetools
// tool emits progress events.
func result(data string, isErr bool, kind errkind.Kind) (<-chan tool.Event, error) {
	ch := make(chan tool.Event, 1)
	ch <- tool.Event{Kind: tool.EventResult, Result: tool.Result{
		Data:               data,
		RenderForAssistant: data,
		IsError:            isErr,
		Kind:               kind,
	}}
	close(ch)
	return ch, nil
}

func ok(data string) (<-chan tool.Event, error) {
	return result(data, false, "")
}

func fail(data string, kind errkind.Kind) (<-chan tool.Event, error) {
	return result(data, true, kind)
}
