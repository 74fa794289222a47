// Package chorus coordinates a fleet of music bot workers and brings their
// sessions back after a restart.
//
// Every guild is served by exactly one worker at a time. Workers publish
// heartbeats to a shared store; the load balancer places new guilds on live
// workers; every session-mutating command saves a snapshot so that a
// restarted worker can rebuild its sessions without user action.
//
// # Quick Start
//
//	import "github.com/arloliu/chorus"
//
//	cfg, err := chorus.LoadConfig("chorus.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := chorus.NewWorker(&cfg, natsConn, audioBackend, gateway)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop(context.Background())
//
// # Key Features
//
//   - Configured worker IDs guarded by a lease, so a worker never runs twice
//   - Heartbeat registry with a 60s liveness window
//   - Sticky guild assignments with lazy correction away from dead owners
//   - Pluggable placement: priority, least-loaded or consistent-hash
//   - Session snapshots written after every mutation, resumed at startup
//   - Optional primary worker that sweeps assignments of dead workers
//
// # Architecture
//
// Workers progress through a state machine:
//
//	INIT → CLAIMING_ID → STARTING → RESUMING → READY
//
// New commands are accepted from RESUMING on; the heartbeat reports
// Starting until resumption completes.
//
// # Advanced Usage
//
// Custom strategy and hooks:
//
//	import (
//	    "github.com/arloliu/chorus"
//	    "github.com/arloliu/chorus/strategy"
//	)
//
//	hooks := &chorus.Hooks{
//	    OnGuildResumed: func(ctx context.Context, guildID string, tracks int) error {
//	        return nil
//	    },
//	}
//
//	w, err := chorus.NewWorker(&cfg, natsConn, backend, gateway,
//	    chorus.WithStrategy(strategy.NewConsistentHash(strategy.WithVirtualNodes(300))),
//	    chorus.WithHooks(hooks),
//	)
//
// See cmd/chorus-worker for a complete worker binary.
package chorus
