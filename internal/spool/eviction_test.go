package spool_test

import (
	"testing"

	"watchpost/internal/spool"
)

func recs(ts ...int64) []spool.Record {
	out := make([]spool.Record, 0, len(ts))
	for i, t := range ts {
		out = append(out, spool.Record{Key: spool.KeyFor(t, 0), CapturedAt: t, SizeBytes: 10, Seq: int64(i + 1)})
	}
	return out
}

func keysOf(records []spool.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.CapturedAt)
	}
	return out
}

func TestSelectEvictions(t *testing.T) {
	cases := []struct {
		name     string
		records  []spool.Record
		capacity spool.Capacity
		want     []int64
	}{
		{"within count", recs(1, 2, 3), spool.Capacity{MaxRecords: 3}, nil},
		{"one over", recs(4, 1, 3, 2), spool.Capacity{MaxRecords: 3}, []int64{1}},
		{"far over", recs(9, 8, 7, 6, 5), spool.Capacity{MaxRecords: 2}, []int64{5, 6, 7}},
		{"bytes", recs(3, 1, 2), spool.Capacity{MaxBytes: 15}, []int64{1, 2}},
		{"both bounds", recs(1, 2, 3, 4), spool.Capacity{MaxRecords: 3, MaxBytes: 20}, []int64{1, 2}},
		{"unknown time first", recs(5, 0, 6), spool.Capacity{MaxRecords: 2}, []int64{0}},
		{"unbounded", recs(1, 2, 3), spool.Capacity{}, nil},
		{"empty", nil, spool.Capacity{MaxRecords: 1}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := keysOf(spool.SelectEvictions(tc.records, tc.capacity))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v want %v", got, tc.want)
				}
			}
		})
	}
}

func TestSelectEvictionsBreaksTiesBySeq(t *testing.T) {
	records := []spool.Record{
		{Key: "capture_7-1.jpg", CapturedAt: 7, SizeBytes: 1, Seq: 9},
		{Key: "capture_7.jpg", CapturedAt: 7, SizeBytes: 1, Seq: 4},
		{Key: "capture_8.jpg", CapturedAt: 8, SizeBytes: 1, Seq: 2},
	}
	got := spool.SelectEvictions(records, spool.Capacity{MaxRecords: 2})
	if len(got) != 1 || got[0].Key != "capture_7.jpg" {
		t.Fatalf("expected the earlier insert to be evicted, got %+v", got)
	}
}

func TestSelectEvictionsKeepsNewest(t *testing.T) {
	records := recs(10, 3, 7, 1, 8, 4)
	evicted := spool.SelectEvictions(records, spool.Capacity{MaxRecords: 3})
	var maxEvicted int64
	for _, r := range evicted {
		if r.CapturedAt > maxEvicted {
			maxEvicted = r.CapturedAt
		}
	}
	gone := map[int64]bool{}
	for _, r := range evicted {
		gone[r.CapturedAt] = true
	}
	for _, r := range records {
		if !gone[r.CapturedAt] && r.CapturedAt < maxEvicted {
			t.Fatalf("kept %d older than evicted %d", r.CapturedAt, maxEvicted)
		}
	}
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		name   string
		ts     int64
		suffix int
		ok     bool
	}{
		{"capture_1700000000.jpg", 1700000000, 0, true},
		{"capture_1700000000-3.jpg", 1700000000, 3, true},
		{"capture_0.jpg", 0, 0, true},
		{"capture_.jpg", 0, 0, false},
		{"capture_12-0.jpg", 0, 0, false},
		{"capture_12-x.jpg", 0, 0, false},
		{"photo_12.jpg", 0, 0, false},
		{"capture_12.png", 0, 0, false},
		{".capture_123.tmp", 0, 0, false},
		{"capture_-5.jpg", 0, 0, false},
	}
	for _, tc := range cases {
		ts, suffix, ok := spool.ParseKey(tc.name)
		if ok != tc.ok || (ok && (ts != tc.ts || suffix != tc.suffix)) {
			t.Fatalf("ParseKey(%q) = %d,%d,%v", tc.name, ts, suffix, ok)
		}
		if ok && spool.KeyFor(ts, suffix) != tc.name {
			t.Fatalf("KeyFor round trip mismatch for %q", tc.name)
		}
	}
}
