// Package kodetools adapts kode's file, search, shell, and task tools to the
// tool.Descriptor contract: JSON Schema validation via tool.Base, a
// concurrency-safety/read-only classification, freshness-registry
// integration for read and edit-class tools, and a streaming Invoke that
// replaces the older deferred-confirmation pattern with the permission
// gate's own Ask/Allow/Deny decision.
package kodetools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath ensures the resolved path is within the allowed working
// directory, rejecting path traversal (e.g. "../../.ssh/id_rsa", "/etc/passwd").
func ValidatePath(workDir, requestedPath string) (string, error) {
	if filepath.IsAbs(requestedPath) {
		rel, err := filepath.Rel(workDir, requestedPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path %q is outside the working directory", requestedPath)
		}
		return filepath.Clean(requestedPath), nil
	}

	absPath := filepath.Join(workDir, requestedPath)
	absPath = filepath.Clean(absPath)

	rel, err := filepath.Rel(workDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside the working directory", requestedPath)
	}
	return absPath, nil
}

// AtomicWrite writes content to a file atomically using a temp file + rename,
// with the temp file created alongside the target so the rename stays on one
// filesystem.
func AtomicWrite(targetPath string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(targetPath)
	tmp, err := os.CreateTemp(dir, ".kode-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmpPath = ""
	return nil
}

// skipDirs names directories that file-walking tools (Glob, Grep) never
// descend into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
}

func shouldSkipDir(name string) bool {
	return skipDirs[name]
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
