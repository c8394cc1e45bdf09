package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"watchpost/internal/capture"
)

// JPEG returns a payload of size bytes that starts with a JPEG SOI marker.
func JPEG(size int) []byte {
	if size < 4 {
		size = 4
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x42
	}
	data[0], data[1] = 0xFF, 0xD8
	data[size-2], data[size-1] = 0xFF, 0xD9
	return data
}

// Artifact builds a capture of size bytes taken at capturedAt.
func Artifact(capturedAt int64, size int) *capture.Artifact {
	return &capture.Artifact{CapturedAt: capturedAt, Data: JPEG(size)}
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
