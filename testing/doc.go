// Package testing provides test utilities for the chorus library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing, plus in-process fakes for
// the external systems a worker talks to. It follows Go's convention of
// providing testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV / CreateLeaseKV: Memory-backed KV buckets
//   - MemoryStore: In-memory types.DocumentStore with failure injection
//   - FakeBackend / FakeSession: Scriptable types.AudioBackend
//   - FakeGateway: Scriptable types.Gateway
//
// Example usage:
//
//	import (
//	    "testing"
//	    chorustest "github.com/arloliu/chorus/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := chorustest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
