package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Executor runs a capture command and returns its stdout.
type Executor interface {
	Output(ctx context.Context, binary string, args []string, limit int64) ([]byte, error)
}

// Option customises a CommandSource.
type Option func(*CommandSource)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *CommandSource) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// CommandSource captures a still by running an external command that writes
// a JPEG to stdout, e.g. rpicam-still -n -o -.
type CommandSource struct {
	binary   string
	args     []string
	timeout  time.Duration
	maxBytes int64
	clock    TimeSource
	exec     Executor
}

// NewCommandSource validates the command and builds a source.
func NewCommandSource(command []string, timeout time.Duration, maxBytes int64, ts TimeSource, opts ...Option) (*CommandSource, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("capture command is empty")
	}
	if ts == nil {
		return nil, errors.New("capture time source is nil")
	}
	s := &CommandSource{
		binary:   command[0],
		args:     append([]string(nil), command[1:]...),
		timeout:  timeout,
		maxBytes: maxBytes,
		clock:    ts,
		exec:     commandExecutor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Capture runs the command once. The timestamp is taken before the command
// starts so it reflects the trigger rather than the encode.
func (s *CommandSource) Capture(ctx context.Context) (*Artifact, error) {
	capturedAt := s.clock.Timestamp()
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	data, err := s.exec.Output(runCtx, s.binary, s.args, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, s.binary, err)
	}
	if err := validateJPEG(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, s.binary, err)
	}
	return &Artifact{CapturedAt: capturedAt, Data: data}, nil
}

// FileSource returns the contents of a fixed file on every call. It stands
// in for a camera on development hosts.
type FileSource struct {
	Path  string
	Clock TimeSource
}

func (s FileSource) Capture(ctx context.Context) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	if err := validateJPEG(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, s.Path, err)
	}
	var capturedAt int64
	if s.Clock != nil {
		capturedAt = s.Clock.Timestamp()
	}
	return &Artifact{CapturedAt: capturedAt, Data: data}, nil
}

func validateJPEG(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty frame")
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return errors.New("frame is not a JPEG")
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string, limit int64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	reader := io.Reader(stdout)
	if limit > 0 {
		reader = io.LimitReader(stdout, limit+1)
	}
	data, readErr := io.ReadAll(reader)
	if limit > 0 && int64(len(data)) > limit {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("frame exceeds %d bytes", limit)
	}
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("read stdout: %w", readErr)
	}
	return data, nil
}
