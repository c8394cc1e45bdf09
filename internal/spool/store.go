package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"watchpost/internal/capture"
	"watchpost/internal/clock"
	"watchpost/internal/config"
	"watchpost/internal/logging"
)

// IndexFileName is the SQLite index created in the state directory.
const IndexFileName = "queue.db"

// maxKeySuffix bounds the collision search for one capture second.
const maxKeySuffix = 10000

// Options configures a Store.
type Options struct {
	// Dir holds one file per record.
	Dir string
	// IndexPath is the SQLite metadata file.
	IndexPath string
	Capacity  Capacity
	Clock     clock.Clock
	Logger    *slog.Logger
	// ReadOnly opens the spool for inspection only. Nothing is reconciled
	// or evicted and mutating calls fail.
	ReadOnly bool
}

// Store is the durable, bounded capture queue. It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	dir        string
	indexPath  string
	capacity   Capacity
	idx        *index
	clock      clock.Clock
	logger     *slog.Logger
	readOnly   bool
	reconciled bool
	closed     bool
	evicted    atomic.Int64
}

// Usage summarises spool occupancy.
type Usage struct {
	Records  int      `json:"records"`
	Bytes    int64    `json:"bytes"`
	Capacity Capacity `json:"capacity"`
	Evicted  int64    `json:"evicted"`
}

// OpenFromConfig opens the spool described by cfg.
func OpenFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("spool: config is nil")
	}
	return Open(ctx, optionsFromConfig(cfg, logger))
}

// OpenReadOnlyFromConfig opens the spool described by cfg for listing only.
func OpenReadOnlyFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("spool: config is nil")
	}
	opts := optionsFromConfig(cfg, logger)
	opts.ReadOnly = true
	return Open(ctx, opts)
}

func optionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Dir:       cfg.Paths.SpoolDir,
		IndexPath: filepath.Join(cfg.Paths.StateDir, IndexFileName),
		Capacity:  Capacity{MaxRecords: cfg.Queue.MaxRecords, MaxBytes: cfg.Queue.MaxBytes},
		Logger:    logger,
	}
}

// Open connects to the index and reconciles it with the spool directory.
//
// Neither a missing spool directory nor an unusable index fails Open:
// operations report ErrStorageUnavailable until both can be used, and
// reconciliation runs on first successful access. A corrupt or
// foreign-version index is moved aside and rebuilt from the record files.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("spool: directory is required")
	}
	if opts.IndexPath == "" {
		opts.IndexPath = filepath.Join(opts.Dir, IndexFileName)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	s := &Store{
		dir:       opts.Dir,
		indexPath: opts.IndexPath,
		capacity:  opts.Capacity,
		clock:     opts.Clock,
		logger:    logging.NewComponentLogger(opts.Logger, "spool"),
		readOnly:  opts.ReadOnly,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		s.openReadOnlyIndexLocked(ctx)
		return s, nil
	}
	if err := s.availableLocked(ctx); err != nil {
		logging.WarnWithContext(s.logger, "spool unavailable; captures cannot be queued", "spool_unavailable",
			logging.String("spool_dir", s.dir),
			logging.String("index_path", s.indexPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that spool_dir and state_dir are mounted and writable"),
			logging.String(logging.FieldImpact, "undelivered captures will be dropped"),
		)
	}
	return s, nil
}

// Dir returns the spool directory.
func (s *Store) Dir() string { return s.dir }

// Capacity returns the configured bounds.
func (s *Store) Capacity() Capacity { return s.capacity }

// Close releases the index. Further calls report ErrStorageUnavailable.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.idx == nil {
		return nil
	}
	return s.idx.close()
}

// Enqueue persists an artifact as a new record and then evicts the oldest
// records until the spool is within capacity. When the new record is itself
// the oldest capture and gets evicted, Enqueue returns it together with
// ErrEvictedOnArrival. A negative capture time is stored as 0.
func (s *Store) Enqueue(ctx context.Context, artifact *capture.Artifact) (Record, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return Record{}, fmt.Errorf("%w: empty artifact", ErrIOFault)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(ctx); err != nil {
		return Record{}, err
	}

	capturedAt := max(artifact.CapturedAt, 0)
	key, err := s.nextKeyLocked(ctx, capturedAt)
	if err != nil {
		return Record{}, err
	}
	if err := writeFileAtomic(s.dir, key, artifact.Data); err != nil {
		return Record{}, fmt.Errorf("%w: write %s: %w", ErrIOFault, key, err)
	}
	rec, err := s.idx.insert(ctx, key, capturedAt, artifact.SizeBytes(), s.clock.Now())
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, key))
		return Record{}, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	s.logger.Debug("capture queued",
		logging.String(logging.FieldRecordKey, rec.Key),
		logging.Int64(logging.FieldCapturedAt, rec.CapturedAt),
		logging.Int64("size_bytes", rec.SizeBytes),
	)

	evicted, err := s.enforceCapacityLocked(ctx)
	if err != nil {
		return rec, err
	}
	for _, victim := range evicted {
		if victim.Key == rec.Key {
			return rec, fmt.Errorf("%w: %s", ErrEvictedOnArrival, rec.Key)
		}
	}
	return rec, nil
}

// List returns every record ordered oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.availableLocked(ctx); err != nil {
		return nil, err
	}
	if s.readOnly {
		return s.snapshotLocked(ctx)
	}
	records, err := s.idx.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	SortOldestFirst(records)
	return records, nil
}

// Read returns the payload for key. A record whose file has vanished is
// dropped from the index and reported as ErrNotFound.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	if !IsRecordName(key) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.availableLocked(ctx); err != nil {
		return nil, err
	}
	if s.readOnly {
		data, err := os.ReadFile(filepath.Join(s.dir, key))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrIOFault, key, err)
		}
		return data, nil
	}
	if _, err := s.idx.get(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_, _ = s.idx.remove(ctx, key)
			return nil, fmt.Errorf("%w: %s file missing", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrIOFault, key, err)
	}
	return data, nil
}

// Delete removes a record. Deleting an absent key is not an error; the
// boolean reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if !IsRecordName(key) {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(ctx); err != nil {
		return false, err
	}
	return s.deleteLocked(ctx, key)
}

func (s *Store) deleteLocked(ctx context.Context, key string) (bool, error) {
	fileRemoved := true
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: remove %s: %w", ErrIOFault, key, err)
		}
		fileRemoved = false
	}
	rowRemoved, err := s.idx.remove(ctx, key)
	if err != nil {
		return fileRemoved, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	return fileRemoved || rowRemoved, nil
}

// Count returns the number of queued records.
func (s *Store) Count(ctx context.Context) (int, error) {
	usage, err := s.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return usage.Records, nil
}

// Usage reports record count, bytes, and the eviction total.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		Records:  len(records),
		Bytes:    TotalBytes(records),
		Capacity: s.capacity,
		Evicted:  s.evicted.Load(),
	}, nil
}

// Evicted returns the number of records evicted since Open.
func (s *Store) Evicted() int64 { return s.evicted.Load() }

// Clear deletes every record and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(ctx); err != nil {
		return 0, err
	}
	records, err := s.idx.all(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	removed := 0
	for _, rec := range records {
		if err := os.Remove(filepath.Join(s.dir, rec.Key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: remove %s: %w", ErrIOFault, rec.Key, err)
		}
		removed++
	}
	if err := s.idx.removeAll(ctx); err != nil {
		return removed, fmt.Errorf("%w: clear index: %w", ErrIOFault, err)
	}
	s.logger.Info("spool cleared",
		logging.Int("removed", removed),
		logging.String(logging.FieldEventType, "spool_cleared"),
	)
	return removed, nil
}

// availableLocked checks the directory and the index, then runs the
// deferred reconcile.
func (s *Store) availableLocked(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrStorageUnavailable)
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrStorageUnavailable, s.dir)
	}
	if s.readOnly {
		return nil
	}
	if err := s.ensureIndexLocked(ctx); err != nil {
		return err
	}
	if !s.reconciled {
		if _, err := s.reconcileLocked(ctx); err != nil {
			return err
		}
		s.reconciled = true
	}
	return nil
}

func (s *Store) writableLocked(ctx context.Context) error {
	if s.readOnly {
		return fmt.Errorf("%w: opened read-only", ErrStorageUnavailable)
	}
	return s.availableLocked(ctx)
}

// ensureIndexLocked opens the index if it is not open yet. A damaged index
// is quarantined once per attempt and a fresh one created in its place; the
// next reconcile adopts the record files left on disk.
func (s *Store) ensureIndexLocked(ctx context.Context) error {
	if s.idx != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o755); err != nil {
		return fmt.Errorf("%w: index directory: %w", ErrStorageUnavailable, err)
	}
	idx, err := openIndex(ctx, s.indexPath)
	if err != nil && isDamagedIndex(err) {
		moved, qerr := quarantineIndex(s.indexPath, s.clock.Now())
		if qerr != nil {
			return fmt.Errorf("%w: quarantine index: %w", ErrStorageUnavailable, qerr)
		}
		logging.WarnWithContext(s.logger, "spool index unreadable; moved aside and rebuilt", "spool_index_quarantined",
			logging.String("index_path", s.indexPath),
			logging.String("quarantined_path", moved),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or remove the quarantined file"),
			logging.String(logging.FieldImpact, "queued captures are re-adopted from spool_dir"),
		)
		idx, err = openIndex(ctx, s.indexPath)
	}
	if err != nil {
		return fmt.Errorf("%w: index: %w", ErrStorageUnavailable, err)
	}
	s.idx = idx
	s.reconciled = false
	return nil
}

// openReadOnlyIndexLocked opens an existing index for listing. Any failure
// leaves the index closed and List falls back to the record files alone.
func (s *Store) openReadOnlyIndexLocked(ctx context.Context) {
	if _, err := os.Stat(s.indexPath); err != nil {
		return
	}
	idx, err := openIndex(ctx, s.indexPath)
	if err != nil {
		s.logger.Debug("spool index not readable; listing files only", logging.Error(err))
		return
	}
	s.idx = idx
}

// snapshotLocked lists the record files on disk, taking sequence and store
// time from the index where a row exists. Nothing is written.
func (s *Store) snapshotLocked(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read spool dir: %w", ErrIOFault, err)
	}
	rows := make(map[string]Record)
	if s.idx != nil {
		all, err := s.idx.all(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIOFault, err)
		}
		for _, row := range all {
			rows[row.Key] = row
		}
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		if row, ok := rows[name]; ok {
			records = append(records, row)
			continue
		}
		capturedAt, _, ok := ParseKey(name)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		records = append(records, Record{
			Key:        name,
			CapturedAt: capturedAt,
			SizeBytes:  info.Size(),
			StoredAt:   info.ModTime(),
		})
	}
	SortOldestFirst(records)
	return records, nil
}

func (s *Store) nextKeyLocked(ctx context.Context, capturedAt int64) (string, error) {
	for suffix := 0; suffix < maxKeySuffix; suffix++ {
		key := KeyFor(capturedAt, suffix)
		inIndex, err := s.idx.exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrIOFault, err)
		}
		if inIndex {
			continue
		}
		if _, err := os.Lstat(filepath.Join(s.dir, key)); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: stat %s: %w", ErrIOFault, key, err)
		}
		return key, nil
	}
	return "", fmt.Errorf("%w: no free key for captured_at=%d", ErrIOFault, capturedAt)
}

// enforceCapacityLocked deletes records selected by SelectEvictions.
func (s *Store) enforceCapacityLocked(ctx context.Context) ([]Record, error) {
	if s.capacity.MaxRecords <= 0 && s.capacity.MaxBytes <= 0 {
		return nil, nil
	}
	records, err := s.idx.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFault, err)
	}
	victims := SelectEvictions(records, s.capacity)
	evicted := make([]Record, 0, len(victims))
	for _, rec := range victims {
		if _, err := s.deleteLocked(ctx, rec.Key); err != nil {
			return evicted, err
		}
		s.evicted.Add(1)
		evicted = append(evicted, rec)
		logging.WarnWithContext(s.logger, "spool over capacity; oldest capture evicted", "spool_evicted",
			logging.String(logging.FieldRecordKey, rec.Key),
			logging.Int64(logging.FieldCapturedAt, rec.CapturedAt),
			logging.Int("max_records", s.capacity.MaxRecords),
			logging.Int64("max_bytes", s.capacity.MaxBytes),
			logging.String(logging.FieldErrorHint, "restore connectivity or raise queue capacity"),
			logging.String(logging.FieldImpact, "capture permanently discarded"),
		)
	}
	return evicted, nil
}
