package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(StaleFile, "file changed on disk since last read")
	require.Equal(t, StaleFile, err.Kind)
	require.Equal(t, "file changed on disk since last read", err.Error())
}

func TestErrorsAsRecoversKind(t *testing.T) {
	var target *Error
	err := New(Permission, "denied by project settings")
	var generic error = err
	require.True(t, errors.As(generic, &target))
	require.Equal(t, Permission, target.Kind)
}

func TestKindsAreDistinct(t *testing.T) {
	kinds := []Kind{Validation, Permission, StaleFile, Cancelled, SiblingCancelled, ToolInternal}
	seen := make(map[Kind]bool)
	for _, k := range kinds {
		require.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true
	}
}
