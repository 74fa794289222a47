// Package types provides core type definitions and interfaces for the chorus library.
//
// This package contains shared types that are used across multiple packages in the
// chorus library. By keeping these types in a separate package, we avoid import cycles
// between the main chorus package and its internal implementations.
//
// Key types:
//   - HeartbeatRecord: Per-worker liveness and load report
//   - GuildAssignment: Which worker owns a guild
//   - SessionSnapshot: Persisted playback state used for resumption
//   - DocumentStore: Keyed compare-and-swap storage used by the registries
//   - AudioBackend, Session: Audio node abstraction
//   - Gateway: Chat platform lookups
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
