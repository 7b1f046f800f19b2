package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgehq/forge/pkg/orcherr"
)

func fullPerms() ExecContext {
	return ExecContext{
		SecurityLevel: SecurityStandard,
		Permissions: map[Permission]bool{
			PermissionFilesystemRead:  true,
			PermissionFilesystemWrite: true,
		},
	}
}

func TestReadFileTool_RejectsMissingRequiredField(t *testing.T) {
	tool, err := NewReadFileTool(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := tool.Validate(map[string]any{}); err == nil {
		t.Fatal("expected missing path to fail validation")
	} else if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeToolValidationError {
		t.Fatalf("expected ToolValidationError, got %v", err)
	}
}

func TestReadFileTool_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	tool, _ := NewReadFileTool(dir, 0)
	result, err := tool.Execute(context.Background(), map[string]any{"path": "../escape.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestReadFileTool_ReadsContentWithLineNumbers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1\nline2\nline3"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool, _ := NewReadFileTool(dir, 0)
	if err := tool.CanExecute(fullPerms()); err != nil {
		t.Fatal(err)
	}
	result, err := tool.Execute(context.Background(), map[string]any{"path": "a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if !strings.Contains(result.Result, "     1| line1") {
		t.Fatalf("expected numbered line 1, got %q", result.Result)
	}
}

func TestReadFileTool_DeniesWithoutPermission(t *testing.T) {
	tool, _ := NewReadFileTool(t.TempDir(), 0)
	err := tool.CanExecute(ExecContext{})
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeIsolationViolation {
		t.Fatalf("expected IsolationViolation, got %v", err)
	}
}

func TestListFilesTool_DefaultsAndTruncates(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".txt"), []byte("x"), 0o644)
	}
	tool, _ := NewListFilesTool(dir)
	result, err := tool.Execute(context.Background(), map[string]any{"maxFiles": float64(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if !strings.HasPrefix(result.Result, "DIR: .\n") || !strings.Contains(result.Result, "... truncated at 2 entries") {
		t.Fatalf("expected default path and truncation at 2 entries, got %q", result.Result)
	}
}

func TestWriteFileTool_WritesAndRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	tool, _ := NewWriteFileTool(dir, 0)

	result, err := tool.Execute(context.Background(), map[string]any{"path": "out.txt", "content": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}

	result, err = tool.Execute(context.Background(), map[string]any{"path": "../out.txt", "content": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestWriteFileTool_RejectsValidationMissingContent(t *testing.T) {
	tool, _ := NewWriteFileTool(t.TempDir(), 0)
	if err := tool.Validate(map[string]any{"path": "a.txt"}); err == nil {
		t.Fatal("expected missing content to fail validation")
	}
}

type fakeSearcher struct {
	result string
	err    error
}

func (f fakeSearcher) Search(ctx context.Context, query, path string) (string, error) {
	return f.result, f.err
}

func TestSearchFilesTool_DelegatesToSearcher(t *testing.T) {
	tool, err := NewSearchFilesTool(fakeSearcher{result: "match: a.go"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := tool.Execute(context.Background(), map[string]any{"query": "TODO"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Result != "match: a.go" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRegistry_RegisterGetList(t *testing.T) {
	reg := NewRegistry()
	read, _ := NewReadFileTool(t.TempDir(), 0)
	list, _ := NewListFilesTool(t.TempDir())
	reg.Register(read)
	reg.Register(list)

	if _, ok := reg.Get("readFile"); !ok {
		t.Fatal("expected readFile to be registered")
	}
	names := reg.List()
	if len(names) != 2 || names[0].Name() != "listFiles" || names[1].Name() != "readFile" {
		t.Fatalf("expected sorted [listFiles readFile], got %v", names)
	}
}
