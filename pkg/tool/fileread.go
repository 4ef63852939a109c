package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-conductor/conductor/pkg/errs"
)

const fileReadSchemaJSON = `{
  "type": "object",
  "properties": {
    "path": {"type": "string"},
    "start_line": {"type": "integer", "minimum": 1},
    "end_line": {"type": "integer", "minimum": 1}
  },
  "required": ["path"]
}`

// FileReadTool reads a file confined to a base directory, rejecting any
// path that escapes it via "..", an absolute path, a symlink, or a control
// character.
type FileReadTool struct {
	baseDir       string
	maxBytes      int64
	maxPathLength int
	schema        *compiledSchema
}

type FileReadConfig struct {
	BaseDir       string
	MaxBytes      int64
	MaxPathLength int
}

func NewFileReadTool(cfg FileReadConfig) (*FileReadTool, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("tool: file-read base directory is required")
	}
	absBase, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("tool: resolve base directory: %w", err)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = 4096
	}
	schema, err := compileSchema("file-read", []byte(fileReadSchemaJSON))
	if err != nil {
		return nil, err
	}
	return &FileReadTool{
		baseDir:       absBase,
		maxBytes:      cfg.MaxBytes,
		maxPathLength: cfg.MaxPathLength,
		schema:        schema,
	}, nil
}

func (t *FileReadTool) Name() string { return "file-read" }

func (t *FileReadTool) Describe() string {
	return "Reads a file confined to a configured base directory, with optional line-range selection."
}

func (t *FileReadTool) Schema() []byte { return []byte(fileReadSchemaJSON) }

func (t *FileReadTool) Invoke(ctx context.Context, arguments map[string]any) Result {
	start := time.Now()
	if sErr := t.schema.validate(t.Name(), arguments); sErr != nil {
		return Result{Tool: t.Name(), OK: false, Error: sErr, DurationMS: since(start)}
	}

	path, _ := arguments["path"].(string)
	if path == "" {
		return t.fail(start, errs.Validation("FILE_PATH_REQUIRED", "path argument is required"))
	}

	fullPath, vErr := t.resolvePath(path)
	if vErr != nil {
		return t.fail(start, vErr)
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		return t.fail(start, errs.NotFound("FILE_NOT_FOUND", err.Error()))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return t.fail(start, errs.Permission("FILE_SYMLINK_NOT_ALLOWED", "symlinks are not allowed"))
	}
	if info.Size() > t.maxBytes {
		return t.fail(start, errs.SizeExceeded("FILE_TOO_LARGE",
			fmt.Sprintf("file is %d bytes, max is %d", info.Size(), t.maxBytes)))
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return t.fail(start, errs.Internal("FILE_READ_FAILED", err.Error()))
	}

	output, rErr := selectLines(string(content), arguments)
	if rErr != nil {
		return t.fail(start, rErr)
	}
	return Result{Tool: t.Name(), OK: true, Output: output, DurationMS: since(start)}
}

func (t *FileReadTool) fail(start time.Time, e *errs.StructuredError) Result {
	return Result{Tool: t.Name(), OK: false, Error: e, DurationMS: since(start)}
}

func (t *FileReadTool) resolvePath(path string) (string, *errs.StructuredError) {
	if len(path) > t.maxPathLength {
		return "", errs.Validation("FILE_PATH_TOO_LONG",
			fmt.Sprintf("path exceeds max length %d", t.maxPathLength))
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return "", errs.Validation("FILE_PATH_CONTROL_CHAR", "path contains a control character")
		}
	}
	if filepath.IsAbs(path) {
		return "", errs.Permission("FILE_ABS_PATH_NOT_ALLOWED", "absolute paths are not allowed")
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return "", errs.Permission("FILE_TRAVERSAL_NOT_ALLOWED", "path traversal (..) is not allowed")
	}

	fullPath := filepath.Join(t.baseDir, path)
	relPath, err := filepath.Rel(t.baseDir, fullPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", errs.Permission("FILE_OUTSIDE_BASE_DIR", "path escapes the configured base directory")
	}
	return fullPath, nil
}

func selectLines(content string, arguments map[string]any) (string, *errs.StructuredError) {
	lines := strings.Split(content, "\n")
	total := len(lines)

	start := 1
	if v, ok := numericArg(arguments, "start_line"); ok {
		start = int(v)
		if start < 1 {
			start = 1
		}
	}
	end := total
	if v, ok := numericArg(arguments, "end_line"); ok {
		end = int(v)
		if end > total {
			end = total
		}
	}
	if start > end {
		return "", errs.Validation("FILE_RANGE_INVALID",
			fmt.Sprintf("start_line (%d) > end_line (%d)", start, end))
	}
	if start > total {
		return "", errs.Validation("FILE_RANGE_OUT_OF_BOUNDS",
			fmt.Sprintf("start_line (%d) exceeds file length (%d lines)", start, total))
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	return b.String(), nil
}

// numericArg reads a JSON-decoded numeric argument, accepting float64
// (the decode/json.Unmarshal default) or int (a caller-constructed map).
func numericArg(arguments map[string]any, key string) (float64, bool) {
	switch v := arguments[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
