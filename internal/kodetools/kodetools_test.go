package kodetools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kodecli/kode/internal/errkind"
	"github.com/kodecli/kode/internal/freshness"
	"github.com/kodecli/kode/internal/tool"
)

func invoke(t *testing.T, d tool.Descriptor, ictx tool.InvokeContext, in interface{}) tool.Result {
	t.Helper()
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	ch, err := d.Invoke(context.Background(), raw, ictx)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var last tool.Result
	for ev := range ch {
		if ev.Kind == tool.EventResult {
			last = ev.Result
		}
	}
	return last
}

func TestGlobToolFindsGoFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("package sub\n"), 0644)

	g, err := NewGlobTool(dir)
	if err != nil {
		t.Fatalf("new glob tool: %v", err)
	}
	res := invoke(t, g, tool.InvokeContext{}, map[string]string{"pattern": "**/*.go"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Data)
	}
	if !strings.Contains(res.Data, "a.go") || !strings.Contains(res.Data, "sub/b.go") {
		t.Errorf("expected both go files, got: %s", res.Data)
	}
}

func TestEditToolRequiresPriorFreshRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	os.WriteFile(path, []byte("package a\n\nfunc Old() {}\n"), 0644)

	reg := freshness.New(0)
	reg.RecordRead(path)

	// Out-of-band edit after the read.
	time.Sleep(5 * time.Millisecond)
	os.WriteFile(path, []byte("package a\n\nfunc Changed() {}\n"), 0644)

	e, err := NewEditTool(dir)
	if err != nil {
		t.Fatalf("new edit tool: %v", err)
	}
	ictx := tool.InvokeContext{Freshness: reg}
	res := invoke(t, e, ictx, map[string]string{
		"path": "a.go", "old_str": "func Changed() {}", "new_str": "func New() {}",
	})
	if !res.IsError || res.Kind != errkind.StaleFile {
		t.Fatalf("expected a stale-file error, got is_error=%v kind=%s data=%s", res.IsError, res.Kind, res.Data)
	}
}

func TestEditToolRequiresRecordedRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	os.WriteFile(path, []byte("package a\n\nfunc Old() {}\n"), 0644)

	reg := freshness.New(freshness.DefaultEpsilon)

	e, err := NewEditTool(dir)
	if err != nil {
		t.Fatalf("new edit tool: %v", err)
	}
	ictx := tool.InvokeContext{Freshness: reg}
	res := invoke(t, e, ictx, map[string]string{
		"path": "a.go", "old_str": "func Old() {}", "new_str": "func New() {}",
	})
	if !res.IsError || res.Kind != errkind.StaleFile {
		t.Fatalf("expected a stale-file error for a never-read target, got is_error=%v kind=%s data=%s", res.IsError, res.Kind, res.Data)
	}
}

func TestEditToolSucceedsAfterFreshRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	os.WriteFile(path, []byte("package a\n\nfunc Old() {}\n"), 0644)

	reg := freshness.New(freshness.DefaultEpsilon)
	reg.RecordRead(path)

	e, err := NewEditTool(dir)
	if err != nil {
		t.Fatalf("new edit tool: %v", err)
	}
	ictx := tool.InvokeContext{Freshness: reg}
	res := invoke(t, e, ictx, map[string]string{
		"path": "a.go", "old_str": "func Old() {}", "new_str": "func New() {}",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Data)
	}

	got, _ := os.ReadFile(path)
	if !strings.Contains(string(got), "func New()") {
		t.Errorf("expected file to contain New(), got: %s", got)
	}

	fresh, conflict := reg.Check(path)
	if !fresh || conflict {
		t.Errorf("expected edit to leave the file fresh, got fresh=%v conflict=%v", fresh, conflict)
	}
}

func TestEditToolAmbiguousMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	os.WriteFile(path, []byte("x\nx\n"), 0644)

	e, err := NewEditTool(dir)
	if err != nil {
		t.Fatalf("new edit tool: %v", err)
	}
	res := invoke(t, e, tool.InvokeContext{}, map[string]string{"path": "a.go", "old_str": "x", "new_str": "y"})
	if !res.IsError || !strings.Contains(res.Data, "ambiguous") {
		t.Fatalf("expected ambiguous match error, got: %+v", res)
	}
}

func TestWriteToolNewFileDoesNotNeedFreshness(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriteTool(dir)
	if err != nil {
		t.Fatalf("new write tool: %v", err)
	}
	reg := freshness.New(freshness.DefaultEpsilon)
	res := invoke(t, w, tool.InvokeContext{Freshness: reg}, map[string]string{"path": "new.go", "content": "package a\n"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Data)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "new.go"))
	if string(got) != "package a\n" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestWriteToolOverwriteRequiresRecordedRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	os.WriteFile(path, []byte("package a\n"), 0644)

	w, err := NewWriteTool(dir)
	if err != nil {
		t.Fatalf("new write tool: %v", err)
	}
	reg := freshness.New(freshness.DefaultEpsilon)
	res := invoke(t, w, tool.InvokeContext{Freshness: reg}, map[string]string{"path": "a.go", "content": "package b\n"})
	if !res.IsError || res.Kind != errkind.StaleFile {
		t.Fatalf("expected a stale-file error for an overwrite of a never-read target, got is_error=%v kind=%s data=%s", res.IsError, res.Kind, res.Data)
	}
}

func TestBashToolCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBashTool(dir)
	if err != nil {
		t.Fatalf("new bash tool: %v", err)
	}
	res := invoke(t, b, tool.InvokeContext{}, map[string]interface{}{"command": "echo hi"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Data)
	}
	if !strings.Contains(res.Data, "hi") {
		t.Errorf("expected output to contain hi, got: %s", res.Data)
	}
}

func TestBashToolNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBashTool(dir)
	if err != nil {
		t.Fatalf("new bash tool: %v", err)
	}
	res := invoke(t, b, tool.InvokeContext{}, map[string]interface{}{"command": "exit 3"})
	if !res.IsError || !strings.Contains(res.Data, "exit code 3") {
		t.Fatalf("expected exit code 3 error, got: %+v", res)
	}
}

func TestValidatePathRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if _, err := ValidatePath(dir, "../outside.go"); err == nil {
		t.Fatal("expected an error escaping the working directory")
	}
}

func TestWriteTasksToolValidatesAndDelegates(t *testing.T) {
	var written []TaskInput
	cb := TaskCallbacks{
		WriteTasks: func(tasks []TaskInput) string {
			written = tasks
			return "2 tasks"
		},
	}
	wt, err := NewWriteTasksTool(cb)
	if err != nil {
		t.Fatalf("new write_tasks tool: %v", err)
	}
	res := invoke(t, wt, tool.InvokeContext{}, map[string]interface{}{
		"tasks": []map[string]string{
			{"content": "Do X", "description": "implement X"},
			{"content": "Do Y", "description": "implement Y"},
		},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Data)
	}
	if len(written) != 2 {
		t.Fatalf("expected callback to receive 2 tasks, got %d", len(written))
	}
}
