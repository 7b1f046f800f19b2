package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// ReadFileArgs is reflected into this tool's JSON schema by schemaValidator.
type ReadFileArgs struct {
	Path      string `json:"path" jsonschema:"required,description=file path, relative to the working directory"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=1-indexed starting line (optional)"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"description=inclusive ending line (optional)"`
}

// ReadFileTool reads file contents, optionally windowed to a line range.
// Grounded on teacher's pkg/tools/read_file.go.
type ReadFileTool struct {
	workingDir  string
	maxFileSize int64
	validator   *schemaValidator
}

func NewReadFileTool(workingDir string, maxFileSize int64) (*ReadFileTool, error) {
	if workingDir == "" {
		workingDir = "."
	}
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	v, err := newSchemaValidator(ReadFileArgs{})
	if err != nil {
		return nil, err
	}
	return &ReadFileTool{workingDir: workingDir, maxFileSize: maxFileSize, validator: v}, nil
}

func (t *ReadFileTool) Name() string        { return "readFile" }
func (t *ReadFileTool) Description() string { return "Read file contents, optionally restricted to a line range." }
func (t *ReadFileTool) Timeout() time.Duration { return 0 }

func (t *ReadFileTool) Validate(args map[string]any) error { return t.validator.validate(args) }

func (t *ReadFileTool) CanExecute(ctx ExecContext) error {
	if !ctx.Allows(PermissionFilesystemRead) {
		return orcherr.New(orcherr.CodeIsolationViolation, "readFile requires the filesystem_read permission")
	}
	return nil
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	start := time.Now()
	path, _ := args["path"].(string)
	if path == "" {
		return failResult(t.Name(), "path parameter is required", start), nil
	}
	if err := validateRelativePath(path); err != nil {
		return failResult(t.Name(), err.Error(), start), nil
	}

	full := filepath.Join(t.workingDir, path)
	info, err := os.Stat(full)
	if err != nil {
		return failResult(t.Name(), fmt.Sprintf("failed to stat file: %v", err), start), nil
	}
	if info.Size() > t.maxFileSize {
		return failResult(t.Name(), fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), t.maxFileSize), start), nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return failResult(t.Name(), fmt.Sprintf("failed to read file: %v", err), start), nil
	}

	lines := strings.Split(string(content), "\n")
	startLine, endLine := lineRange(args, len(lines))
	if startLine > endLine {
		return failResult(t.Name(), fmt.Sprintf("invalid range: start_line (%d) > end_line (%d)", startLine, endLine), start), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FILE: %s (%d lines)\n", path, len(lines))
	for i := startLine - 1; i < endLine && i < len(lines); i++ {
		fmt.Fprintf(&b, "%6d| %s\n", i+1, lines[i])
	}
	return okResult(t.Name(), b.String(), start), nil
}

func validateRelativePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths are not allowed, use a relative path")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path must not traverse outside the working directory")
	}
	return nil
}

func lineRange(args map[string]any, total int) (start, end int) {
	start, end = 1, total
	if sl, ok := args["start_line"].(float64); ok && int(sl) >= 1 {
		start = int(sl)
	}
	if el, ok := args["end_line"].(float64); ok && int(el) <= total {
		end = int(el)
	}
	return start, end
}
