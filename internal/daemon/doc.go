// Package daemon coordinates the long-running Watchpost process and its
// system integration points.
//
// It wires configuration, the capture spool, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon serves the local HTTP API (status, queue listing, remote
// triggers, PIR sensor input, manual sweeps) and runs the optional netlink
// uevent monitor that feeds local camera triggers.
//
// Keep orchestration logic here: capture, delivery, and queue policy live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
