package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	maxLineBytes        = 1024 * 1024
)

// Tailer reads lines from one log path.
type Tailer struct {
	Path string
	// PollInterval paces Follow; zero means 250ms.
	PollInterval time.Duration
}

// Last returns up to n trailing lines and the offset just past them. A
// missing file yields no lines and offset zero.
func (t Tailer) Last(n int) ([]string, int64, error) {
	file, err := os.Open(t.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, 0, n)
	}
	offset, err := scanLines(file, func(line string) error {
		if n <= 0 {
			return nil
		}
		if len(ring) == n {
			ring = append(ring[1:], line)
		} else {
			ring = append(ring, line)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ring, offset, nil
}

// Follow emits every line written after offset until ctx ends or emit fails.
// When the path starts pointing at a different file, or the file shrinks,
// reading restarts from the beginning.
func (t Tailer) Follow(ctx context.Context, offset int64, emit func(string) error) error {
	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var current os.FileInfo
	for {
		info, err := os.Stat(t.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			current, offset = nil, 0
		case err != nil:
			return fmt.Errorf("stat log file: %w", err)
		default:
			if current != nil && !os.SameFile(current, info) || info.Size() < offset {
				offset = 0
			}
			current = info
			if info.Size() > offset {
				if offset, err = t.readFrom(offset, emit); err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t Tailer) readFrom(offset int64, emit func(string) error) (int64, error) {
	file, err := os.Open(t.Path)
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scanLines(file, emit)
	return offset + read, err
}

// scanLines feeds complete lines to fn and returns the bytes consumed. A
// trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string) error) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			text := line[:len(line)-1]
			if len(text) > 0 && text[len(text)-1] == '\r' {
				text = text[:len(text)-1]
			}
			if len(text) > maxLineBytes {
				text = text[:maxLineBytes]
			}
			if err := fn(text); err != nil {
				return consumed, err
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
