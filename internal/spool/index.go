package spool

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes; an index with another
// version is quarantined and rebuilt from the spool files.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	sqliteCorruptCode       = 11
	sqliteNotADBCode        = 26
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const recordColumns = "seq, key, captured_at, size_bytes, stored_at"

// index is the SQLite metadata table behind the spool files.
type index struct {
	db *sql.DB
}

func openIndex(ctx context.Context, path string) (*index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	idx := &index{db: db}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *index) close() error {
	return i.db.Close()
}

func (i *index) initSchema(ctx context.Context) error {
	var tableExists int
	err := i.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return i.createSchema(ctx)
	}

	var version int
	if err := i.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: index has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (i *index) createSchema(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (i *index) insert(ctx context.Context, key string, capturedAt, size int64, storedAt time.Time) (Record, error) {
	var seq int64
	err := retryOnBusy(ctx, func() error {
		res, err := i.db.ExecContext(ctx,
			"INSERT INTO records (key, captured_at, size_bytes, stored_at) VALUES (?, ?, ?, ?)",
			key, capturedAt, size, storedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("insert record %s: %w", key, err)
	}
	return Record{Key: key, CapturedAt: capturedAt, SizeBytes: size, Seq: seq, StoredAt: storedAt.UTC()}, nil
}

func (i *index) remove(ctx context.Context, key string) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := i.db.ExecContext(ctx, "DELETE FROM records WHERE key = ?", key)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete record %s: %w", key, err)
	}
	return affected > 0, nil
}

func (i *index) removeAll(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		_, err := i.db.ExecContext(ctx, "DELETE FROM records")
		return err
	})
}

func (i *index) get(ctx context.Context, key string) (Record, error) {
	row := i.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE key = ?", key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record %s: %w", key, err)
	}
	return rec, nil
}

func (i *index) exists(ctx context.Context, key string) (bool, error) {
	var count int
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE key = ?", key).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup record %s: %w", key, err)
	}
	return count > 0, nil
}

// all returns every row ordered by (captured_at, seq).
func (i *index) all(ctx context.Context) ([]Record, error) {
	rows, err := i.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM records ORDER BY captured_at, seq")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec      Record
		storedAt string
	)
	if err := s.Scan(&rec.Seq, &rec.Key, &rec.CapturedAt, &rec.SizeBytes, &storedAt); err != nil {
		return Record{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		rec.StoredAt = ts
	}
	return rec, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// isDamagedIndex reports errors that no retry can fix: the file is not a
// SQLite database, its pages are corrupt, or its schema is foreign.
func isDamagedIndex(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaMismatch) || errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() & 0xff {
		case sqliteCorruptCode, sqliteNotADBCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "malformed")
}

// quarantineIndex renames the index and its WAL sidecars out of the way and
// returns the new name of the main file.
func quarantineIndex(path string, now time.Time) (string, error) {
	suffix := fmt.Sprintf(".corrupt-%d", now.Unix())
	for _, name := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Rename(name, name+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("rename %s: %w", name, err)
		}
	}
	return path + suffix, nil
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
