// Package spool is the bounded durable queue for captures that could not be
// delivered immediately.
//
// Each record is one flat file in the spool directory, named from its capture
// timestamp, plus a row in a SQLite index that carries the metadata and an
// insertion sequence. Ordering for delivery and eviction always comes from
// sorting on (CapturedAt, Seq); directory enumeration order is never trusted.
//
// The store is lossy under pressure: when an insert pushes the spool past its
// capacity, the oldest records are deleted permanently. There is no archive.
package spool
