package spool

// SelectEvictions returns the records to delete so the remainder fits cap.
//
// Records are taken from the front of the (CapturedAt, Seq) order until both
// the count and byte bounds hold. Captures with an unknown timestamp (0) sort
// first and are therefore the first to go. Eviction is permanent; callers
// lose those captures.
func SelectEvictions(records []Record, capacity Capacity) []Record {
	if len(records) == 0 {
		return nil
	}
	ordered := append([]Record(nil), records...)
	SortOldestFirst(ordered)

	count := len(ordered)
	total := TotalBytes(ordered)
	var evict []Record
	for _, r := range ordered {
		overCount := capacity.MaxRecords > 0 && count > capacity.MaxRecords
		overBytes := capacity.MaxBytes > 0 && total > capacity.MaxBytes
		if !overCount && !overBytes {
			break
		}
		evict = append(evict, r)
		count--
		total -= r.SizeBytes
	}
	return evict
}
