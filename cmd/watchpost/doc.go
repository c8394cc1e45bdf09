// Package main hosts the watchpost CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, queries and
// drives a running daemon over its local HTTP API, inspects or clears the
// capture spool directly when the daemon is stopped, and scaffolds
// configuration. Configuration resolution lives in commandContext so
// subcommands only deal with presentation.
package main
