package freshness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCheckNoRecordIsStale(t *testing.T) {
	r := New(DefaultEpsilon)
	fresh, conflict := r.Check("/never/read.go")
	require.False(t, fresh)
	require.True(t, conflict)
}

func TestRecordReadThenUnchangedIsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(DefaultEpsilon)
	r.RecordRead(path)

	fresh, conflict := r.Check(path)
	require.True(t, fresh)
	require.False(t, conflict)
}

func TestEditWithoutPriorReadIsStale(t *testing.T) {
	// P7: an edit tool that never recorded a read for its target fails stale.
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(DefaultEpsilon)
	fresh, conflict := r.Check(path)
	require.False(t, fresh)
	require.True(t, conflict)
}

func TestCheckDetectsOutOfBandEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(0) // no tolerance, so any mtime advance is stale
	r.RecordRead(path)

	time.Sleep(5 * time.Millisecond)
	writeFile(t, path, "package a\n\nfunc X() {}\n")

	fresh, conflict := r.Check(path)
	require.False(t, fresh)
	require.False(t, conflict)
}

func TestCheckToleratesAgentsOwnEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(200 * time.Millisecond)
	r.RecordRead(path)
	writeFile(t, path, "package a\n\nfunc X() {}\n")
	r.RecordEdit(path)

	fresh, conflict := r.Check(path)
	require.True(t, fresh)
	require.False(t, conflict)
}

func TestCheckMissingFileIsConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(DefaultEpsilon)
	r.RecordRead(path)
	require.NoError(t, os.Remove(path))

	fresh, conflict := r.Check(path)
	require.False(t, fresh)
	require.True(t, conflict)
}

func TestForgetClearsRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n")

	r := New(0)
	r.RecordRead(path)
	time.Sleep(5 * time.Millisecond)
	writeFile(t, path, "changed\n")

	fresh, _ := r.Check(path)
	require.False(t, fresh)

	r.Forget(path)
	fresh, conflict := r.Check(path)
	require.False(t, fresh)
	require.True(t, conflict)
}
