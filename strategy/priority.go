package strategy

import "github.com/arloliu/chorus/types"

// Priority picks the first candidate, in preference order, that has capacity headroom.
type Priority struct {
	maxSessions int
}

var _ types.BalancingStrategy = (*Priority)(nil)

// NewPriority creates a priority strategy capping each worker at maxSessions (0 = unlimited).
func NewPriority(maxSessions int) *Priority {
	return &Priority{maxSessions: maxSessions}
}

// Name implements types.BalancingStrategy.
func (p *Priority) Name() string { return NamePriority }

// Select implements types.BalancingStrategy.
func (p *Priority) Select(candidates []types.HeartbeatRecord, _ /* guildID */ string) (string, error) {
	for _, c := range candidates {
		if hasHeadroom(c, p.maxSessions) {
			return c.WorkerID, nil
		}
	}

	return "", ErrNoWorkers
}
