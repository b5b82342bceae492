package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	write := NewWriteFileTool(sb)
	read := NewReadFileTool(sb, DefaultOutputLimits())

	args, _ := json.Marshal(WriteFileArgs{FilePath: "notes/hello.txt", Content: "first\nsecond\n"})
	out, err := write.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out, "Created new file") {
		t.Errorf("write output = %q", out)
	}

	args, _ = json.Marshal(ReadFileArgs{FilePath: "notes/hello.txt"})
	out, err = read.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out, "1: first") || !strings.Contains(out, "2: second") {
		t.Errorf("read output = %q", out)
	}
}

func TestWriteOverwriteReportsLineCounts(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	write := NewWriteFileTool(sb)

	args, _ := json.Marshal(WriteFileArgs{FilePath: "f.txt", Content: "a\nb\nc\n"})
	if _, err := write.Execute(context.Background(), args); err != nil {
		t.Fatal(err)
	}

	args, _ = json.Marshal(WriteFileArgs{FilePath: "f.txt", Content: "a\n"})
	out, err := write.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "3 lines -> 1 lines") {
		t.Errorf("output = %q", out)
	}
}

func TestWritePreservesPermissions(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	path := filepath.Join(sb.Root(), "run.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	write := NewWriteFileTool(sb)
	args, _ := json.Marshal(WriteFileArgs{FilePath: "run.sh", Content: "#!/bin/sh\necho hi\n"})
	if _, err := write.Execute(context.Background(), args); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestWriteOutsideWorkspaceRejected(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	write := NewWriteFileTool(sb)

	args, _ := json.Marshal(WriteFileArgs{FilePath: "../evil.txt", Content: "x"})
	_, err := write.Execute(context.Background(), args)
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrPathNotInWorkspace {
		t.Errorf("err = %v, want PATH_NOT_IN_WORKSPACE", err)
	}
}

func TestReadLineRange(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	var content strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&content, "line%d\n", i)
	}
	writeTestFile(t, sb.Root(), "big.txt", content.String())

	read := NewReadFileTool(sb, DefaultOutputLimits())
	args, _ := json.Marshal(ReadFileArgs{FilePath: "big.txt", StartLine: 3, EndLine: 5})
	out, err := read.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "3: line3") || !strings.Contains(out, "5: line5") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "line6") {
		t.Errorf("range leaked: %q", out)
	}
}

func TestReadTruncatesLongFiles(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	var content strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	writeTestFile(t, sb.Root(), "big.txt", content.String())

	limits := OutputLimits{MaxLines: 10, MaxBytes: 1 << 20, MaxResults: 100}
	read := NewReadFileTool(sb, limits)
	args, _ := json.Marshal(ReadFileArgs{FilePath: "big.txt"})
	out, err := read.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[Output truncated") {
		t.Errorf("missing truncation marker: %q", out)
	}
}

func TestReadBinaryFileRejected(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	data := []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01, 0x02, 0x00}
	if err := os.WriteFile(filepath.Join(sb.Root(), "bin"), data, 0644); err != nil {
		t.Fatal(err)
	}

	read := NewReadFileTool(sb, DefaultOutputLimits())
	args, _ := json.Marshal(ReadFileArgs{FilePath: "bin"})
	_, err := read.Execute(context.Background(), args)
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrBinaryFile {
		t.Errorf("err = %v, want BINARY_FILE", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	sb := mustSandbox(t, t.TempDir())
	read := NewReadFileTool(sb, DefaultOutputLimits())

	args, _ := json.Marshal(ReadFileArgs{FilePath: "nope.txt"})
	_, err := read.Execute(context.Background(), args)
	var te *ToolError
	if !errors.As(err, &te) || te.Type != ErrFileNotFound {
		t.Errorf("err = %v, want FILE_NOT_FOUND", err)
	}
}
