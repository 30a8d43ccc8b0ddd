// Package pkg provides shared utilities for the cardlog storage engine.
//
// This package contains common functionality used across the protocol,
// block-device, and scheduling layers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for the card protocol and write path
//   - Component identifiers for log filtering
//   - Latency accumulators for storage observability
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with engine-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentCard, "card initialized", "blocks", geo.CapacityBlocks)
//
// # Errors
//
// Common storage errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrCRC) {
//	    // Handle data corruption on the wire
//	}
//
// Card data-error tokens decode to [DataError], which implements error
// while preserving the 4-bit class reported by the card.
package pkg
