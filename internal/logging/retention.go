package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names the files in one directory that expire. Kind labels
// them in log events, e.g. "log" or "index".
type RetentionTarget struct {
	Kind    string
	Dir     string
	Pattern string
	Exclude []string
}

// PruneExpired removes regular files matched by targets whose modification
// time is more than retentionDays before now, and returns how many it
// removed. A retentionDays of 0 keeps everything.
func PruneExpired(logger *slog.Logger, now time.Time, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "expired file not removed", "retention_failed",
					String("path", path),
					String("kind", target.kind()),
					Error(err),
					String(FieldErrorHint, "check ownership of "+target.Dir),
					String(FieldImpact, "expired file keeps using disk space"),
				)
				continue
			}
			removed++
			logger.Info("expired file pruned",
				String("path", path),
				String("kind", target.kind()),
				String(FieldEventType, "file_pruned"),
			)
		}
	}
	return removed
}

func (t RetentionTarget) kind() string {
	if t.Kind == "" {
		return "log"
	}
	return t.Kind
}

// expired lists matching files last modified before cutoff. Symlinks such as
// the current-log pointer are never returned.
func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}

	keep := make(map[string]struct{}, len(t.Exclude))
	for _, path := range t.Exclude {
		keep[filepath.Clean(path)] = struct{}{}
	}
	var out []string
	for _, path := range matches {
		if _, ok := keep[filepath.Clean(path)]; ok {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, path)
	}
	return out
}
