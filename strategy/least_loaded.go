package strategy

import "github.com/arloliu/chorus/types"

// LeastLoaded picks the candidate with the fewest sessions.
//
// Ties are broken by tenant count, then by preference order.
type LeastLoaded struct {
	maxSessions int
}

var _ types.BalancingStrategy = (*LeastLoaded)(nil)

// NewLeastLoaded creates a least-loaded strategy capping each worker at maxSessions (0 = unlimited).
func NewLeastLoaded(maxSessions int) *LeastLoaded {
	return &LeastLoaded{maxSessions: maxSessions}
}

// Name implements types.BalancingStrategy.
func (l *LeastLoaded) Name() string { return NameLeastLoaded }

// Select implements types.BalancingStrategy.
func (l *LeastLoaded) Select(candidates []types.HeartbeatRecord, _ /* guildID */ string) (string, error) {
	best := -1
	for i, c := range candidates {
		if !hasHeadroom(c, l.maxSessions) {
			continue
		}
		if best < 0 || lighter(c, candidates[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", ErrNoWorkers
	}

	return candidates[best].WorkerID, nil
}

// lighter reports whether a is strictly less loaded than b. Equal load keeps
// the earlier candidate.
func lighter(a, b types.HeartbeatRecord) bool {
	if a.SessionCount != b.SessionCount {
		return a.SessionCount < b.SessionCount
	}

	return a.TenantCount < b.TenantCount
}
