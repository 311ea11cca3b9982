// Package logging provides a minimal logging interface and adapters for Maestro.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the turn engine, stores and provider adapters use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - Domain helpers for provider calls and agent dispatch timing
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
