// Package hash provides the consistent hash ring used for guild placement.
package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"
)

// Ring is a consistent hash ring with virtual nodes.
//
// Keys (guild IDs) map to workers so that adding or removing one worker only
// moves the keys that worker gains or loses.
type Ring struct {
	// nodes holds every virtual node, sorted by hash.
	nodes []virtualNode

	// workers holds the unique workers on the ring, in insertion order.
	workers []string

	// seed for the hash function (0 means unseeded)
	seed uint64
}

type virtualNode struct {
	hash      uint64
	workerIdx int
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - workers: Worker IDs to place on the ring; duplicates are ignored
//   - virtualNodesPerWorker: Number of virtual nodes per worker (higher = smoother spread)
//   - seed: Hash seed (0 for the unseeded hash)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"worker-1", "worker-2"}, 150, 0)
//	owner := ring.GetNode(guildID)
func NewRing(workers []string, virtualNodesPerWorker int, seed uint64) *Ring {
	ring := &Ring{
		nodes:   make([]virtualNode, 0, len(workers)*virtualNodesPerWorker),
		workers: make([]string, 0, len(workers)),
		seed:    seed,
	}

	seen := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		ring.workers = append(ring.workers, w)
	}

	for i, workerID := range ring.workers {
		ring.addWorker(workerID, i, virtualNodesPerWorker)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		default:
			return 0
		}
	})

	return ring
}

// GetNode returns the worker responsible for key, or "" on an empty ring.
func (r *Ring) GetNode(key string) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.workers[r.nodes[r.search(r.hash(key))].workerIdx]
}

// Successors returns every worker on the ring in the order met when walking
// clockwise from key. The first element equals GetNode(key).
//
// Strategies use it to fall back to the next worker when the preferred one
// has no headroom, without disturbing placement of other keys.
func (r *Ring) Successors(key string) []string {
	if len(r.nodes) == 0 {
		return nil
	}

	out := make([]string, 0, len(r.workers))
	seen := make([]bool, len(r.workers))
	start := r.search(r.hash(key))

	for i := range len(r.nodes) {
		idx := r.nodes[(start+i)%len(r.nodes)].workerIdx
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, r.workers[idx])
		if len(out) == len(r.workers) {
			break
		}
	}

	return out
}

// Workers returns the unique workers on the ring.
func (r *Ring) Workers() []string {
	return append([]string(nil), r.workers...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

func (r *Ring) addWorker(workerID string, workerIdx int, virtualNodes int) {
	for i := range virtualNodes {
		// Fold the vnode index into the worker hash instead of hashing "id#i".
		h := r.hash(workerID)

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{hash: h, workerIdx: workerIdx})
	}
}

func (r *Ring) hash(key string) uint64 {
	if r.seed != 0 {
		return xxh3.HashStringSeed(key, r.seed)
	}

	return xxh3.HashString(key)
}

// search returns the index of the first node whose hash is >= target, wrapping to 0.
func (r *Ring) search(target uint64) int {
	idx, _ := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		switch {
		case node.hash < t:
			return -1
		case node.hash > t:
			return 1
		default:
			return 0
		}
	})
	if idx >= len(r.nodes) {
		idx = 0
	}

	return idx
}
