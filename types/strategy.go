package types

// BalancingStrategy picks the worker that should own a new guild.
//
// Implementations must be pure: the same candidates and guild always yield the
// same choice. Candidates are already filtered to live workers and ordered by
// the configured preference list.
type BalancingStrategy interface {
	// Name returns the configuration name of the strategy.
	Name() string

	// Select returns the chosen worker ID.
	//
	// Parameters:
	//   - candidates: Live heartbeat records in preference order
	//   - guildID: Guild being placed (used by affinity strategies)
	//
	// Returns:
	//   - string: Worker ID of the chosen candidate
	//   - error: ErrNoWorkersAvailable when no candidate qualifies
	Select(candidates []HeartbeatRecord, guildID string) (string, error)
}
