package types

import "context"

// Hooks defines callbacks for worker lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so they never block resumption or command handling. Hooks receive the
// worker's lifecycle context which will be cancelled during shutdown.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - The context passed to hooks is cancelled when the worker stops
//   - Hook errors are logged but don't fail worker operations
//
// Example:
//
//	hooks := &chorus.Hooks{
//	    OnGuildResumed: func(ctx context.Context, guildID string, tracks int) error {
//	        return announce(ctx, guildID, tracks)
//	    },
//	}
type Hooks struct {
	// OnGuildResumed is called after a guild's session was rebuilt from its snapshot.
	OnGuildResumed func(ctx context.Context, guildID string, tracks int) error

	// OnOwnershipLost is called when a command found that another worker now owns the guild.
	OnOwnershipLost func(ctx context.Context, guildID, newOwner string) error

	// OnPrimaryChanged is called when this worker gains or loses the primary role.
	OnPrimaryChanged func(ctx context.Context, isPrimary bool) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
