package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDescriptor struct {
	name     string
	readOnly bool
}

func (f fakeDescriptor) Name() string                              { return f.name }
func (f fakeDescriptor) Description() string                       { return "fake" }
func (f fakeDescriptor) Schema() json.RawMessage                   { return json.RawMessage(`{}`) }
func (f fakeDescriptor) Validate(json.RawMessage) *ValidationError  { return nil }
func (f fakeDescriptor) IsConcurrencySafe(json.RawMessage) bool     { return f.readOnly }
func (f fakeDescriptor) IsReadOnly() bool                           { return f.readOnly }
func (f fakeDescriptor) NeedsPermissions(json.RawMessage) bool      { return false }
func (f fakeDescriptor) MatchSubject(json.RawMessage) string        { return "" }
func (f fakeDescriptor) Invoke(ctx context.Context, input json.RawMessage, ictx InvokeContext) (<-chan Event, error) {
	ch := make(chan Event, 1)
	ch <- Event{Kind: EventResult, Result: Result{Data: "ok"}}
	close(ch)
	return ch, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeDescriptor{name: "Read", readOnly: true})
	r.Register(fakeDescriptor{name: "Write", readOnly: false})

	d, ok := r.Get("Read")
	require.True(t, ok)
	require.Equal(t, "Read", d.Name())

	_, ok = r.Get("Missing")
	require.False(t, ok)
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeDescriptor{name: "Read"})
	r.Register(fakeDescriptor{name: "Glob"})
	r.Register(fakeDescriptor{name: "Grep"})

	names := make([]string, 0, 3)
	for _, d := range r.All() {
		names = append(names, d.Name())
	}
	require.Equal(t, []string{"Read", "Glob", "Grep"}, names)
}

func TestRegistryReRegisterKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeDescriptor{name: "Read", readOnly: true})
	r.Register(fakeDescriptor{name: "Glob", readOnly: true})
	r.Register(fakeDescriptor{name: "Read", readOnly: false})

	names := make([]string, 0, 2)
	for _, d := range r.All() {
		names = append(names, d.Name())
	}
	require.Equal(t, []string{"Read", "Glob"}, names)

	d, _ := r.Get("Read")
	require.False(t, d.IsReadOnly())
}

func TestRegistryIsReadOnly(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeDescriptor{name: "Read", readOnly: true})
	r.Register(fakeDescriptor{name: "Write", readOnly: false})

	require.True(t, r.IsReadOnly("Read"))
	require.False(t, r.IsReadOnly("Write"))
	require.False(t, r.IsReadOnly("Unknown"))
}
