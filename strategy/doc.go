// Package strategy provides the built-in load balancing strategies.
//
// A strategy picks the worker that should own a guild that has no live owner.
// Candidates are already filtered to live workers and ordered by the
// configured preference list; strategies only decide among them.
//
//   - Priority: first candidate with capacity headroom (default)
//   - LeastLoaded: fewest sessions, ties broken by tenant count then preference order
//   - ConsistentHash: guild-affinity placement on a virtual-node hash ring
//
// # Strategy Selection Guide
//
// Priority:
//   - Use when workers are ranked (a main bot and overflow bots)
//   - Fills the first worker up to MaxSessions before touching the next
//
// LeastLoaded:
//   - Use for a fleet of equivalent workers
//   - Spreads guilds evenly by live session count
//
// ConsistentHash:
//   - Use when a guild should land on the same worker across restarts
//   - Falls back along the ring when the preferred worker is full
//
// Custom strategies can be implemented by satisfying the types.BalancingStrategy interface.
package strategy
