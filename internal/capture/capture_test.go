package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"watchpost/internal/capture"
)

type fixedTime int64

func (f fixedTime) Timestamp() int64 { return int64(f) }

type stubExecutor struct {
	data  []byte
	err   error
	calls int
	got   []string
}

func (s *stubExecutor) Output(_ context.Context, binary string, args []string, _ int64) ([]byte, error) {
	s.calls++
	s.got = append([]string{binary}, args...)
	return s.data, s.err
}

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestCommandSourceCapture(t *testing.T) {
	exec := &stubExecutor{data: jpeg}
	src, err := capture.NewCommandSource([]string{"rpicam-still", "-o", "-"}, time.Second, 1024, fixedTime(1700000000), capture.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandSource: %v", err)
	}
	artifact, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if artifact.CapturedAt != 1700000000 {
		t.Fatalf("unexpected timestamp %d", artifact.CapturedAt)
	}
	if artifact.SizeBytes() != int64(len(jpeg)) {
		t.Fatalf("unexpected size %d", artifact.SizeBytes())
	}
	if len(exec.got) != 3 || exec.got[0] != "rpicam-still" || exec.got[2] != "-" {
		t.Fatalf("unexpected command %v", exec.got)
	}
}

func TestCommandSourceFailures(t *testing.T) {
	cases := []struct {
		name string
		exec *stubExecutor
	}{
		{"command error", &stubExecutor{err: errors.New("camera busy")}},
		{"empty frame", &stubExecutor{data: nil}},
		{"not jpeg", &stubExecutor{data: []byte("PNG")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := capture.NewCommandSource([]string{"cam"}, time.Second, 0, fixedTime(0), capture.WithExecutor(tc.exec))
			if err != nil {
				t.Fatalf("NewCommandSource: %v", err)
			}
			if _, err := src.Capture(context.Background()); !errors.Is(err, capture.ErrCaptureFailed) {
				t.Fatalf("expected ErrCaptureFailed, got %v", err)
			}
		})
	}
}

func TestNewCommandSourceRejectsEmptyCommand(t *testing.T) {
	if _, err := capture.NewCommandSource(nil, time.Second, 0, fixedTime(0)); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.jpg")
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	artifact, err := capture.FileSource{Path: path, Clock: fixedTime(42)}.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if artifact.CapturedAt != 42 || artifact.SizeBytes() != int64(len(jpeg)) {
		t.Fatalf("unexpected artifact %+v", artifact)
	}

	_, err = capture.FileSource{Path: filepath.Join(t.TempDir(), "missing.jpg")}.Capture(context.Background())
	if !errors.Is(err, capture.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
}
