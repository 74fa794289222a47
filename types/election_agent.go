package types

import "context"

// ElectionAgent holds the primary lease.
//
// The default agent is a revisioned key in a JetStream KV bucket whose TTL
// equals the lease duration, so a crashed primary's lease lapses on its own.
// A custom agent (for example one backed by an external lock service) can be
// supplied with chorus.WithElectionAgent.
//
// The primary duty loop calls RequestLeadership until it wins, then
// RenewLeadership at a third of the lease duration, and ReleaseLeadership on
// graceful shutdown.
type ElectionAgent interface {
	// RequestLeadership tries to take the lease for workerID, or extends it
	// when workerID already holds it.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - workerID: Contending worker
	//   - leaseDuration: Lease duration in seconds
	//
	// Returns:
	//   - bool: true if the lease is now held by workerID
	//   - error: Store error; losing the race is not an error
	RequestLeadership(ctx context.Context, workerID string, leaseDuration int64) (bool, error)

	// RenewLeadership extends a held lease. An error means the lease is gone
	// and the caller must stop acting as primary.
	RenewLeadership(ctx context.Context) error

	// ReleaseLeadership gives the lease up so another worker can take it at once.
	ReleaseLeadership(ctx context.Context) error

	// IsLeader reports whether the stored lease is still the one this agent took.
	IsLeader(ctx context.Context) (bool, error)
}
