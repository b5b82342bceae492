package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func editArgs(t *testing.T, file, old, new string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(EditFileArgs{FilePath: file, OldText: old, NewText: new})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestEditReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	sb := mustSandbox(t, dir)
	writeTestFile(t, sb.Root(), "main.go", "package main\n\nfunc main() {}\n")

	tool := NewEditFileTool(sb)
	out, err := tool.Execute(context.Background(), editArgs(t, "main.go", "func main() {}", "func main() {\n\trun()\n}"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Edited main.go") {
		t.Errorf("output = %q", out)
	}

	data, _ := os.ReadFile(filepath.Join(sb.Root(), "main.go"))
	if !strings.Contains(string(data), "run()") {
		t.Errorf("file content = %q", data)
	}
}

func TestEditZeroMatchesLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	sb := mustSandbox(t, dir)
	original := "line one\nline two\n"
	writeTestFile(t, sb.Root(), "f.txt", original)

	tool := NewEditFileTool(sb)
	_, err := tool.Execute(context.Background(), editArgs(t, "f.txt", "not present", "replacement"))
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrExecutionFailed {
		t.Fatalf("err = %v, want EXECUTION_FAILED", err)
	}
	if !strings.Contains(te.Message, "not found") {
		t.Errorf("message = %q", te.Message)
	}

	data, _ := os.ReadFile(filepath.Join(sb.Root(), "f.txt"))
	if string(data) != original {
		t.Error("file mutated on failed edit")
	}
}

func TestEditMultipleMatchesLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	sb := mustSandbox(t, dir)
	original := "x = 1\nx = 1\n"
	writeTestFile(t, sb.Root(), "f.txt", original)

	tool := NewEditFileTool(sb)
	_, err := tool.Execute(context.Background(), editArgs(t, "f.txt", "x = 1", "x = 2"))
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ToolError", err)
	}
	if !strings.Contains(te.Message, "2 locations") {
		t.Errorf("message = %q", te.Message)
	}

	data, _ := os.ReadFile(filepath.Join(sb.Root(), "f.txt"))
	if string(data) != original {
		t.Error("file mutated on ambiguous edit")
	}
}

func TestEditConcurrentEditsBothApply(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	writeTestFile(t, sb.Root(), "f.txt", "alpha\nbeta\n")
	tool := NewEditFileTool(sb)

	argsA := editArgs(t, "f.txt", "alpha", "ALPHA")
	argsB := editArgs(t, "f.txt", "beta", "BETA")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, args := range []json.RawMessage{argsA, argsB} {
		wg.Add(1)
		go func(i int, args json.RawMessage) {
			defer wg.Done()
			_, errs[i] = tool.Execute(context.Background(), args)
		}(i, args)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}
	data, _ := os.ReadFile(filepath.Join(sb.Root(), "f.txt"))
	if string(data) != "ALPHA\nBETA\n" {
		t.Errorf("content = %q, one edit was lost", data)
	}

	// No lock or temp droppings next to the file.
	entries, err := os.ReadDir(sb.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "f.txt" {
		t.Errorf("workspace entries = %v", entries)
	}
}

func TestEditIdenticalTextsRejected(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	tool := NewEditFileTool(sb)

	_, err := tool.Execute(context.Background(), editArgs(t, "f.txt", "same", "same"))
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrInvalidParams {
		t.Errorf("err = %v, want INVALID_PARAMS", err)
	}
}

func TestEditMissingFile(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	tool := NewEditFileTool(sb)

	_, err := tool.Execute(context.Background(), editArgs(t, "ghost.txt", "a", "b"))
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrFileNotFound {
		t.Errorf("err = %v, want FILE_NOT_FOUND", err)
	}
}
