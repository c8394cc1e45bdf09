package spool

import "errors"

var (
	// ErrStorageUnavailable means the spool directory or index cannot be used.
	ErrStorageUnavailable = errors.New("spool storage unavailable")
	// ErrIOFault means a read or write against the spool failed.
	ErrIOFault = errors.New("spool io fault")
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("spool record not found")
	// ErrSchemaMismatch means the index was created by an incompatible version.
	ErrSchemaMismatch = errors.New("spool index schema version mismatch")
	// ErrEvictedOnArrival means Enqueue stored the record and then evicted it
	// because it was the oldest capture in a full spool.
	ErrEvictedOnArrival = errors.New("spool record evicted on arrival")
)
