// Package logging provides structured, opt-in file-based logging with rotation.
// When enabled, logs are written as JSON lines to ~/.codesearch/logs/server.log
// with size-based rotation.
//
// By default, logging is minimal and goes to stderr only.
package logging
