package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-compressor/internal/logging"
	"media-compressor/internal/transcoder"
)

const readyMarker = "{ready}"

// Exiftool probes files with "exiftool -j -G".
type Exiftool struct {
	path   string
	runner transcoder.Runner
}

// NewExiftool creates a prober using the exiftool executable at path.
func NewExiftool(path string, runner transcoder.Runner) *Exiftool {
	return &Exiftool{path: path, runner: runner}
}

// Probe runs one exiftool process for the file. ExifTool exits non-zero
// when it reports an Error tag, so stdout is parsed whenever present.
func (e *Exiftool) Probe(ctx context.Context, path string) (Tags, error) {
	cmd := transcoder.Command{Tool: transcoder.ToolExiftool, Path: e.path, Args: []string{"-j", "-G", path}}
	stdout, err := e.runner.Run(ctx, cmd)
	if len(bytes.TrimSpace(stdout)) == 0 {
		if err == nil {
			err = &transcoder.ToolError{Message: "exiftool returned no output", CommandLine: cmd.CommandLine()}
		}
		return nil, err
	}
	return ParseJSON(stdout)
}

// Open starts a long-running "exiftool -stay_open" process. The session is
// not safe for concurrent use; each worker opens its own.
func (e *Exiftool) Open(ctx context.Context) (Session, error) {
	cmd := exec.CommandContext(ctx, e.path, "-stay_open", "True", "-@", "-")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &transcoder.ToolError{
			Message:     "failed to start exiftool",
			CommandLine: transcoder.Command{Path: e.path, Args: cmd.Args[1:]}.CommandLine(),
			Err:         err,
		}
	}
	logging.Debug("Started exiftool session (pid %d)", cmd.Process.Pid)

	return &stayOpenSession{
		path:   e.path,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		stderr: bufio.NewReader(stderr),
	}, nil
}

type stayOpenSession struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *bufio.Reader

	mu     sync.Mutex
	closed bool
}

func (s *stayOpenSession) Probe(ctx context.Context, path string) (tags Tags, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { transcoder.RecordInvocation(transcoder.ToolExiftool, start, err) }()

	if s.closed {
		return nil, errors.New("exiftool session is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// -echo4 writes the marker to stderr once processing is complete, which
	// keeps the stderr stream in step with stdout.
	args := []string{"-j", "-G", path, "-echo4", readyMarker, "-execute"}
	if _, err := io.WriteString(s.stdin, strings.Join(args, "\n")+"\n"); err != nil {
		return nil, fmt.Errorf("exiftool write: %w", err)
	}

	stdout, err := readUntilReady(s.stdout)
	if err != nil {
		return nil, fmt.Errorf("exiftool read stdout: %w", err)
	}
	stderr, err := readUntilReady(s.stderr)
	if err != nil {
		return nil, fmt.Errorf("exiftool read stderr: %w", err)
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, &transcoder.ToolError{
			Message:     "exiftool returned no output",
			CommandLine: transcoder.Command{Path: s.path, Args: []string{"-j", "-G", path}}.CommandLine(),
			Stderr:      string(stderr),
		}
	}
	return ParseJSON(stdout)
}

func readUntilReady(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if strings.TrimRight(line, "\r\n") == readyMarker {
			return buf.Bytes(), nil
		}
		buf.WriteString(line)
		if err != nil {
			return buf.Bytes(), err
		}
	}
}

// Close asks exiftool to exit and waits for it.
func (s *stayOpenSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = io.WriteString(s.stdin, "-stay_open\nFalse\n")
	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("exiftool session exit: %w", err)
	}
	return nil
}

// ParseJSON flattens the first object of exiftool's -j output, keeping the
// document order so that later duplicate keys win.
func ParseJSON(data []byte) (Tags, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	if !dec.More() {
		return nil, errors.New("exiftool returned an empty result")
	}
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	tags := Tags{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid exiftool JSON: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid exiftool JSON: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid exiftool JSON value for %s: %w", key, err)
		}
		tags.Set(key, stringValue(raw))
	}
	return tags, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid exiftool JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("invalid exiftool JSON: expected %q, got %v", want, tok)
	}
	return nil
}

func stringValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = stringValue(item)
			}
			return strings.Join(parts, ", ")
		}
	case 'n':
		return ""
	}
	return string(trimmed)
}
