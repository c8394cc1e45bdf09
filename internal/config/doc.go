// Package config loads, normalizes, and validates Watchpost configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WATCHPOST_API_KEY. The Config type centralizes every knob the daemon and CLI
// need: spool and state directories, backend endpoints and credentials,
// trigger debounce/cooldown windows, queue capacity, and loop intervals.
//
// All values are fixed at provision time; there is no runtime
// reconfiguration. Always obtain settings through this package so downstream
// code receives sanitized paths and clear validation errors.
package config
