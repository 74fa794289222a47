package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS runs an in-process NATS server with JetStream and
// returns it together with a connected client.
//
// The server listens on a random loopback port and keeps JetStream state in
// t.TempDir(). Both are torn down by t.Cleanup, client first.
//
// Parameters:
//   - t: Test that owns the server
//
// Returns:
//   - *server.Server: The embedded server, for tests that need to stop it
//   - *nats.Conn: Connected client
//
// Example:
//
//	_, nc := chorustest.StartEmbeddedNATS(t)
//	kv := chorustest.CreateJetStreamKV(t, nc, "chorus-heartbeat")
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("failed to create embedded NATS server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready within 5s")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second), nats.MaxReconnects(3))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("failed to connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// CreateJetStreamKV creates a memory-backed KV bucket whose entries expire after a minute.
//
// A minute outlives every test, so entries behave as if they never expire.
// Use CreateLeaseKV when the test depends on expiry.
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucket string) jetstream.KeyValue {
	t.Helper()

	return CreateLeaseKV(t, nc, bucket, time.Minute)
}

// CreateLeaseKV creates a memory-backed KV bucket whose entries expire after ttl,
// the way worker ID and primary lease buckets are configured in production.
//
// Parameters:
//   - t: Test that owns the bucket
//   - nc: Connection from StartEmbeddedNATS
//   - bucket: Bucket name
//   - ttl: Entry lifetime; zero keeps entries forever
//
// Returns:
//   - jetstream.KeyValue: The new bucket
func CreateLeaseKV(t *testing.T, nc *nats.Conn, bucket string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create jetstream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:   bucket,
		TTL:      ttl,
		Storage:  jetstream.MemoryStorage,
		Replicas: 1,
	})
	if err != nil {
		t.Fatalf("failed to create KV bucket %s: %v", bucket, err)
	}

	return kv
}
