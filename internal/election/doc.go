// Package election elects the fleet's primary worker.
//
// Only workers configured with isPrimary contend. The primary runs
// fleet-wide housekeeping (the stale assignment sweep); losing the role
// only stops that housekeeping, never any guild's playback.
//
// # Lease
//
// Lease implements types.ElectionAgent on a JetStream KV bucket whose TTL is
// the lease duration:
//   - Create acquires the vacant lease atomically
//   - Update with the held revision renews it
//   - Delete hands it over on shutdown
//
// A worker that crashed while primary and restarts under the same worker ID
// before the TTL expires takes its own lease back instead of waiting.
//
// # Duty
//
// Duty drives an ElectionAgent: it contends on an interval, renews while
// primary, and runs a task (e.g. the sweep) on its own interval while it
// holds the role.
//
//	lease := election.NewLease(kv, "primary")
//	duty := election.NewDuty(lease, "bot-1", 30*time.Second,
//	    election.WithTask(time.Minute, func(ctx context.Context) error {
//	        _, err := dir.DeactivateOrphans(ctx, isLive)
//	        return err
//	    }),
//	)
//	if err := duty.Start(ctx); err != nil {
//	    return err
//	}
//	defer duty.Stop(ctx)
package election
