// Package api defines wire-format types, converters, and the HTTP client for
// the daemon's local API. It translates workflow and spool models into
// transport-friendly DTOs so the CLI can render them without coupling to
// internal types.
//
// # Key Types
//
// DaemonStatus: process details plus WorkflowStatus (tier, reachability,
// spool occupancy, last sweep, counters, and both trigger arbiters).
//
// QueueListResponse: spooled records in delivery order.
//
// Trigger/Sensor/Sweep request and response bodies for the control routes.
//
// # Converters
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// FromRecords: []spool.Record -> QueueListResponse.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset. Errors are returned as ErrorResponse bodies.
package api
