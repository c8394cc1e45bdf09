package spool

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	keyPrefix    = "capture_"
	keyExtension = ".jpg"
)

// Record is one persisted capture. Records are never updated in place.
type Record struct {
	Key        string    `json:"key"`
	CapturedAt int64     `json:"captured_at"`
	SizeBytes  int64     `json:"size_bytes"`
	Seq        int64     `json:"seq"`
	StoredAt   time.Time `json:"stored_at"`
}

// Capacity bounds the spool. A zero field disables that bound.
type Capacity struct {
	MaxRecords int   `json:"max_records"`
	MaxBytes   int64 `json:"max_bytes"`
}

// Less orders records oldest first, breaking capture-time ties by insertion.
func Less(a, b Record) bool {
	if a.CapturedAt != b.CapturedAt {
		return a.CapturedAt < b.CapturedAt
	}
	return a.Seq < b.Seq
}

// SortOldestFirst sorts records in place by (CapturedAt, Seq).
func SortOldestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return Less(records[i], records[j]) })
}

// TotalBytes sums record sizes.
func TotalBytes(records []Record) int64 {
	var total int64
	for _, r := range records {
		total += r.SizeBytes
	}
	return total
}

// KeyFor names the file for a capture. Suffix 0 is the plain name; higher
// suffixes disambiguate captures within the same second.
func KeyFor(capturedAt int64, suffix int) string {
	if suffix <= 0 {
		return fmt.Sprintf("%s%d%s", keyPrefix, capturedAt, keyExtension)
	}
	return fmt.Sprintf("%s%d-%d%s", keyPrefix, capturedAt, suffix, keyExtension)
}

// IsRecordName reports whether a directory entry belongs to the spool.
func IsRecordName(name string) bool {
	_, _, ok := ParseKey(name)
	return ok
}

// ParseKey extracts the capture timestamp and suffix from a record name. It
// is only used to adopt files that are missing from the index.
func ParseKey(name string) (int64, int, bool) {
	if !strings.HasPrefix(name, keyPrefix) || !strings.HasSuffix(name, keyExtension) {
		return 0, 0, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, keyPrefix), keyExtension)
	stamp, suffix := body, 0
	if idx := strings.IndexByte(body, '-'); idx >= 0 {
		n, err := strconv.Atoi(body[idx+1:])
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		stamp, suffix = body[:idx], n
	}
	capturedAt, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || capturedAt < 0 {
		return 0, 0, false
	}
	return capturedAt, suffix, true
}
