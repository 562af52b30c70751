package scheduler

import "context"

// Asker prompts for a user decision when the permission gate returns Ask. It
// is the "awaits user" suspension point from spec.md §5.
type Asker interface {
	// Ask returns true if the user allowed the call, false if they denied it.
	// A returned error is treated as a denial.
	Ask(ctx context.Context, toolName, matchSubject string) (bool, error)
}

// DenyAsker is the fail-closed default: every Ask decision is denied. Used
// when a caller doesn't wire an interactive asker (e.g. a non-interactive
// batch run), so an unconfigured gate never silently runs an effectful tool.
type DenyAsker struct{}

func (DenyAsker) Ask(context.Context, string, string) (bool, error) {
	return false, nil
}
