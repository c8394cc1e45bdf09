// Package logs reads the daemon's current log file for the CLI. It follows
// the watchpost.log pointer across daemon restarts and truncation.
package logs
