package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
)

const shellSchemaJSON = `{
  "type": "object",
  "properties": {
    "command": {"type": "string"},
    "working_dir": {"type": "string"}
  },
  "required": ["command"]
}`

// ShellTool runs a single shell command subject to an allow-list on the
// base command, a wall-clock timeout, and byte-ceiling truncation on
// captured output.
type ShellTool struct {
	allowedCommands []string
	workingDir      string
	timeout         time.Duration
	maxOutputBytes  int
	schema          *compiledSchema
}

// ShellConfig configures a ShellTool. An empty AllowedCommands means no
// command is permitted — callers must opt in explicitly, there is no
// "allow everything" default.
type ShellConfig struct {
	AllowedCommands []string
	WorkingDir      string
	Timeout         time.Duration
	MaxOutputBytes  int
}

// NewShellTool constructs a ShellTool. Timeout defaults to 30s and
// MaxOutputBytes to 64KiB when unset, mirroring the teacher's own
// command-tool defaults.
func NewShellTool(cfg ShellConfig) (*ShellTool, error) {
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "./"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}
	schema, err := compileSchema("shell-exec", []byte(shellSchemaJSON))
	if err != nil {
		return nil, err
	}
	return &ShellTool{
		allowedCommands: cfg.AllowedCommands,
		workingDir:      cfg.WorkingDir,
		timeout:         cfg.Timeout,
		maxOutputBytes:  cfg.MaxOutputBytes,
		schema:          schema,
	}, nil
}

func (t *ShellTool) Name() string { return "shell-exec" }

func (t *ShellTool) Describe() string {
	return "Runs a single shell command whose base command is in the configured allow-list. " +
		"Returns combined stdout/stderr, truncated at a configured byte ceiling."
}

func (t *ShellTool) Schema() []byte { return []byte(shellSchemaJSON) }

func (t *ShellTool) Invoke(ctx context.Context, arguments map[string]any) Result {
	start := time.Now()
	if sErr := t.schema.validate(t.Name(), arguments); sErr != nil {
		return Result{Tool: t.Name(), OK: false, Error: sErr, DurationMS: since(start)}
	}

	command, _ := arguments["command"].(string)
	if command == "" {
		return t.fail(start, errs.Validation("SHELL_COMMAND_REQUIRED", "command argument is required"))
	}

	base := baseCommand(command)
	if !t.isAllowed(base) {
		return t.fail(start, errs.Permission("SHELL_COMMAND_NOT_ALLOWED",
			fmt.Sprintf("command %q is not in the allow-list", base)))
	}
	for _, segment := range strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == ';' || r == '&' || r == '\n'
	}) {
		if next := baseCommand(segment); next != "" && !t.isAllowed(next) {
			return t.fail(start, errs.Permission("SHELL_COMMAND_NOT_ALLOWED",
				fmt.Sprintf("command %q is not in the allow-list", next)))
		}
	}

	workingDir := t.workingDir
	if wd, ok := arguments["working_dir"].(string); ok && wd != "" {
		workingDir = wd
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "sh", "-c", command)
	cmd.Dir = workingDir
	// Put the child in its own process group so a timeout cancellation can
	// kill the whole tree (e.g. a shell that forked a long-running grandchild),
	// not just the immediate "sh" process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	output, runErr := cmd.CombinedOutput()
	truncated := truncate(output, t.maxOutputBytes)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return t.fail(start, errs.Timeout("SHELL_TIMEOUT",
			fmt.Sprintf("command exceeded %s timeout", t.timeout)))
	}
	if runErr != nil {
		return Result{
			Tool:       t.Name(),
			OK:         false,
			Output:     truncated,
			Error:      errs.Internal("SHELL_EXIT_NONZERO", runErr.Error()),
			DurationMS: since(start),
		}
	}

	return Result{Tool: t.Name(), OK: true, Output: truncated, DurationMS: since(start)}
}

func (t *ShellTool) fail(start time.Time, e *errs.StructuredError) Result {
	return Result{Tool: t.Name(), OK: false, Error: e, DurationMS: since(start)}
}

func (t *ShellTool) isAllowed(base string) bool {
	for _, allowed := range t.allowedCommands {
		if allowed == base {
			return true
		}
	}
	return false
}

// baseCommand extracts argv[0] of the first pipeline segment. Invoke also
// applies it to every segment split at |, ;, & and newlines, so an
// allow-listed "ls" doesn't let "ls; rm -rf /" through on the strength of
// its first token alone. Command substitution ($(...) or backticks) is not
// inspected.
func baseCommand(command string) string {
	segments := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';' || r == '&'
	})
	if len(segments) == 0 {
		return ""
	}
	fields := strings.Fields(segments[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + fmt.Sprintf("\n...[truncated, %d bytes omitted]", len(b)-max)
}

func since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
