package strategy

import (
	"fmt"

	"github.com/arloliu/chorus/types"
)

// Strategy names accepted by New.
const (
	NamePriority       = "priority"
	NameLeastLoaded    = "least-loaded"
	NameConsistentHash = "consistent-hash"
)

// Options holds settings shared by the built-in strategies.
type Options struct {
	// MaxSessions is the per-worker session cap. Zero means unlimited.
	MaxSessions int

	// VirtualNodes is the virtual node count for ConsistentHash (default 150).
	VirtualNodes int

	// HashSeed seeds the ConsistentHash ring (0 for unseeded).
	HashSeed uint64
}

// New builds a strategy from its configuration name.
//
// Parameters:
//   - name: One of "priority", "least-loaded", "consistent-hash"; empty means priority
//   - opts: Shared strategy settings
//
// Returns:
//   - types.BalancingStrategy: The strategy
//   - error: types.ErrUnknownStrategy for any other name
//
// Example:
//
//	s, err := strategy.New(cfg.Balancing.Strategy, strategy.Options{MaxSessions: 100})
func New(name string, opts Options) (types.BalancingStrategy, error) {
	switch name {
	case "", NamePriority:
		return NewPriority(opts.MaxSessions), nil
	case NameLeastLoaded:
		return NewLeastLoaded(opts.MaxSessions), nil
	case NameConsistentHash:
		chOpts := []ConsistentHashOption{WithMaxSessions(opts.MaxSessions), WithHashSeed(opts.HashSeed)}
		if opts.VirtualNodes > 0 {
			chOpts = append(chOpts, WithVirtualNodes(opts.VirtualNodes))
		}

		return NewConsistentHash(chOpts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownStrategy, name)
	}
}

// hasHeadroom reports whether rec can take one more session under maxSessions.
func hasHeadroom(rec types.HeartbeatRecord, maxSessions int) bool {
	return maxSessions <= 0 || rec.SessionCount < maxSessions
}
