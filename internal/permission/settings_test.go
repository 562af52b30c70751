package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStoreMigratesLegacyLocalSettings(t *testing.T) {
	dir := t.TempDir()
	legacyPath := legacyLocalSettingsPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(legacyPath), 0755))
	legacyJSON := `{"permissions":{"allow":["Bash(ls:*)"]}}`
	require.NoError(t, os.WriteFile(legacyPath, []byte(legacyJSON), 0644))

	g := NewGate(nil)
	_, err := NewStore(g, dir, zap.NewNop())
	require.NoError(t, err)

	newPath := filepath.Join(dir, ".kode", "settings.local.json")
	migrated, err := os.ReadFile(newPath)
	require.NoError(t, err)
	require.JSONEq(t, legacyJSON, string(migrated))

	d, _ := g.Check(CheckRequest{ToolName: "Bash", MatchSubject: "ls -la", NeedsPermission: true})
	require.Equal(t, DecisionAllow, d)
}

func TestNewStoreLeavesNewLocalSettingsAlone(t *testing.T) {
	dir := t.TempDir()
	newPath := filepath.Join(dir, ".kode", "settings.local.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(newPath), 0755))
	require.NoError(t, os.WriteFile(newPath, []byte(`{"permissions":{"allow":["Read"]}}`), 0644))

	legacyPath := legacyLocalSettingsPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(legacyPath), 0755))
	require.NoError(t, os.WriteFile(legacyPath, []byte(`{"permissions":{"allow":["Bash(ls:*)"]}}`), 0644))

	g := NewGate(nil)
	_, err := NewStore(g, dir, zap.NewNop())
	require.NoError(t, err)

	d, _ := g.Check(CheckRequest{ToolName: "Read", NeedsPermission: true})
	require.Equal(t, DecisionAllow, d)
	d, _ = g.Check(CheckRequest{ToolName: "Bash", MatchSubject: "ls -la", NeedsPermission: true})
	require.Equal(t, DecisionAsk, d)
}

func TestNewStoreNoLegacyNoNewIsEmpty(t *testing.T) {
	dir := t.TempDir()
	g := NewGate(nil)
	_, err := NewStore(g, dir, zap.NewNop())
	require.NoError(t, err)

	d, _ := g.Check(CheckRequest{ToolName: "Bash", MatchSubject: "ls -la", NeedsPermission: true})
	require.Equal(t, DecisionAsk, d)
}
