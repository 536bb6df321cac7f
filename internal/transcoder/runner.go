package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
)

// Tool names used for metric labels.
const (
	ToolExiftool = "exiftool"
	ToolMagick   = "magick"
	ToolFFmpeg   = "ffmpeg"
)

// Command is one invocation of an external tool.
type Command struct {
	// Tool is the metric label, e.g. "ffmpeg".
	Tool string
	// Path is the executable.
	Path string
	Args []string
}

// CommandLine renders the command the way a shell would accept it.
func (c Command) CommandLine() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'\\") {
		return strconv.Quote(s)
	}
	return s
}

// ToolError reports an external tool that failed to start or exited
// non-zero.
type ToolError struct {
	Message     string
	CommandLine string
	Stderr      string
	Err         error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: CommandLine: %s, Output: %s: %v", e.Message, e.CommandLine, strings.TrimSpace(e.Stderr), e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner executes commands. Run returns the captured stdout even when the
// command fails, since some tools report per-file errors on stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	processes map[*exec.Cmd]string
	processMu sync.Mutex
}

// NewExecRunner creates a runner that tracks its live processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{processes: make(map[*exec.Cmd]string)}
}

// Run starts the command and waits for it. Cancelling ctx kills the process.
func (r *ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.track(cmd, c.CommandLine())
	defer r.untrack(cmd)

	err := cmd.Run()
	RecordInvocation(c.Tool, start, err)
	if err != nil {
		return stdout.Bytes(), &ToolError{
			Message:     c.Tool + " failed",
			CommandLine: c.CommandLine(),
			Stderr:      stderr.String(),
			Err:         err,
		}
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) track(cmd *exec.Cmd, line string) {
	r.processMu.Lock()
	r.processes[cmd] = line
	r.processMu.Unlock()
}

func (r *ExecRunner) untrack(cmd *exec.Cmd) {
	r.processMu.Lock()
	delete(r.processes, cmd)
	r.processMu.Unlock()
}

// Active returns how many child processes are running.
func (r *ExecRunner) Active() int {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	return len(r.processes)
}

// Cleanup kills every tracked child process.
func (r *ExecRunner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for cmd, line := range r.processes {
		if cmd.Process != nil {
			logging.Info("Killing external process: %s", line)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logging.Warn("failed to kill process %s: %v", line, err)
			}
		}
	}
}

// RecordInvocation updates the tool metrics for one invocation.
func RecordInvocation(tool string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	metrics.ToolInvocationDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
