// Package player owns a worker's live voice sessions.
//
// Every session-mutating command goes through Manager, which serializes work
// per guild and guards it with two ownership checks: one before touching the
// session and one before writing the snapshot. A worker that lost a guild to
// a reassignment therefore stops writing that guild's snapshot immediately,
// even while its old session keeps playing until it ends.
package player
