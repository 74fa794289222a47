package strategy

import (
	"github.com/arloliu/chorus/internal/hash"
	"github.com/arloliu/chorus/types"
)

// ConsistentHash places guilds on a hash ring of the candidate workers.
//
// A guild keeps landing on the same worker as long as that worker stays live,
// and only the guilds of a departed worker move when the fleet shrinks.
type ConsistentHash struct {
	virtualNodes int
	hashSeed     uint64
	maxSessions  int
}

var _ types.BalancingStrategy = (*ConsistentHash)(nil)

// ConsistentHashOption configures a ConsistentHash strategy.
type ConsistentHashOption func(*ConsistentHash)

// NewConsistentHash creates a new consistent hash strategy.
//
// Parameters:
//   - opts: Optional configuration (WithVirtualNodes, WithHashSeed, WithMaxSessions)
//
// Returns:
//   - *ConsistentHash: Initialized consistent hash strategy
//
// Example:
//
//	s := strategy.NewConsistentHash(
//	    strategy.WithVirtualNodes(300),
//	    strategy.WithMaxSessions(100),
//	)
func NewConsistentHash(opts ...ConsistentHashOption) *ConsistentHash {
	ch := &ConsistentHash{
		virtualNodes: 150,
	}

	for _, opt := range opts {
		opt(ch)
	}

	return ch
}

// WithVirtualNodes sets the number of virtual nodes per worker.
//
// Higher values provide better distribution but cost more per Select.
// Recommended range: 100-300 (default: 150).
func WithVirtualNodes(nodes int) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.virtualNodes = nodes
	}
}

// WithHashSeed sets a custom hash seed.
func WithHashSeed(seed uint64) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.hashSeed = seed
	}
}

// WithMaxSessions caps each worker's sessions. A full worker is skipped in
// favour of the next worker clockwise on the ring.
func WithMaxSessions(maxSessions int) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.maxSessions = maxSessions
	}
}

// Name implements types.BalancingStrategy.
func (ch *ConsistentHash) Name() string { return NameConsistentHash }

// Select implements types.BalancingStrategy.
//
// The ring is built over candidate IDs only, so preference order has no
// influence on placement.
func (ch *ConsistentHash) Select(candidates []types.HeartbeatRecord, guildID string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoWorkers
	}

	byID := make(map[string]types.HeartbeatRecord, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		byID[c.WorkerID] = c
		ids = append(ids, c.WorkerID)
	}

	ring := hash.NewRing(ids, ch.virtualNodes, ch.hashSeed)
	for _, workerID := range ring.Successors(guildID) {
		if hasHeadroom(byID[workerID], ch.maxSessions) {
			return workerID, nil
		}
	}

	return "", ErrNoWorkers
}
