package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"watchpost/internal/logging"
)

// ReconcileResult reports what Reconcile changed.
type ReconcileResult struct {
	Dropped int
	Adopted int
	Cleaned int
}

// Reconcile brings the index and the spool directory back into agreement:
// rows whose file is gone are dropped, record files with no row are adopted,
// and leftover temp files are removed. Capacity is enforced afterwards.
func (s *Store) Reconcile(ctx context.Context) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(ctx); err != nil {
		return ReconcileResult{}, err
	}
	return s.reconcileLocked(ctx)
}

type orphanFile struct {
	name       string
	capturedAt int64
	suffix     int
	size       int64
	info       os.FileInfo
}

func (s *Store) reconcileLocked(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return result, fmt.Errorf("%w: read spool dir: %w", ErrIOFault, err)
	}
	rows, err := s.idx.all(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	indexed := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		indexed[row.Key] = struct{}{}
	}

	onDisk := make(map[string]struct{}, len(entries))
	var orphans []orphanFile
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		if isTempName(name) {
			if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
				result.Cleaned++
			}
			continue
		}
		capturedAt, suffix, ok := ParseKey(name)
		if !ok {
			continue
		}
		onDisk[name] = struct{}{}
		if _, ok := indexed[name]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		orphans = append(orphans, orphanFile{name: name, capturedAt: capturedAt, suffix: suffix, size: info.Size(), info: info})
	}

	for _, row := range rows {
		if _, ok := onDisk[row.Key]; ok {
			continue
		}
		if _, err := s.idx.remove(ctx, row.Key); err != nil {
			return result, fmt.Errorf("%w: %w", ErrIOFault, err)
		}
		result.Dropped++
		logging.WarnWithContext(s.logger, "spool index row had no file; dropped", "spool_row_dropped",
			logging.String(logging.FieldRecordKey, row.Key),
			logging.String(logging.FieldErrorHint, "spool files were removed outside watchpost"),
			logging.String(logging.FieldImpact, "capture cannot be delivered"),
		)
	}

	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].capturedAt != orphans[j].capturedAt {
			return orphans[i].capturedAt < orphans[j].capturedAt
		}
		return orphans[i].suffix < orphans[j].suffix
	})
	for _, orphan := range orphans {
		if orphan.size == 0 {
			_ = os.Remove(filepath.Join(s.dir, orphan.name))
			result.Cleaned++
			continue
		}
		if _, err := s.idx.insert(ctx, orphan.name, orphan.capturedAt, orphan.size, orphan.info.ModTime()); err != nil {
			return result, fmt.Errorf("%w: %w", ErrIOFault, err)
		}
		result.Adopted++
		s.logger.Info("spool file adopted into index",
			logging.String(logging.FieldRecordKey, orphan.name),
			logging.Int64(logging.FieldCapturedAt, orphan.capturedAt),
			logging.String(logging.FieldEventType, "spool_file_adopted"),
		)
	}

	if _, err := s.enforceCapacityLocked(ctx); err != nil {
		return result, err
	}
	if result.Dropped+result.Adopted+result.Cleaned > 0 {
		s.logger.Info("spool reconciled",
			logging.Int("dropped", result.Dropped),
			logging.Int("adopted", result.Adopted),
			logging.Int("cleaned", result.Cleaned),
			logging.String(logging.FieldEventType, "spool_reconciled"),
		)
	}
	return result, nil
}
