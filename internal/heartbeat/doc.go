// Package heartbeat implements the heartbeat registry: one liveness and load
// record per worker, and the publisher each worker runs to keep its own
// record fresh.
//
// # Liveness
//
// A worker is live iff its record is not Offline and was written less than
// types.LivenessWindow (60s) ago. Nothing else decides whether a worker may
// receive new guilds. Staleness is passive: a crashed worker simply stops
// refreshing its record and drops out of ListLive.
//
// # Publisher Lifecycle
//
//  1. Create publisher with New(registry, workerID, interval, opts...)
//  2. Start publishing with Start(ctx), which writes a Starting record immediately
//  3. Call SetReady(true) once startup finished; status becomes Available, InUse or Error
//  4. Stop publishing with Stop(), which writes a final Offline record
//
// Example:
//
//	registry := heartbeat.NewRegistry(store)
//	publisher := heartbeat.New(registry, "bot-1", 15*time.Second,
//	    heartbeat.WithStats(sessions.Stats))
//	if err := publisher.Start(ctx); err != nil {
//	    return err
//	}
//	defer publisher.Stop()
//
// # Failure Handling
//
// A failed periodic publish is logged and counted; the next tick retries.
// Publishing never blocks request handling.
package heartbeat
