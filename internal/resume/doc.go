// Package resume rebuilds a worker's voice sessions from their snapshots
// after a restart.
//
// Resumption is a single reconciliation pass run at startup. Each snapshot
// owned by the worker ends in exactly one outcome:
//
//	Loaded -> Skipped                      guild or a channel is gone; snapshot tombstoned
//	Loaded -> Recreating -> Searching -> Resumed     at least one track re-resolved
//	                                  -> KeptAlive   no tracks, persistent (24/7) guild
//	                                  -> Abandoned   no tracks; session destroyed, snapshot tombstoned
//	any step -> Failed                     unexpected error; session destroyed, snapshot tombstoned
//	any step -> Cancelled                  shutdown; only recreated sessions are torn down
//
// Tracks are re-resolved by search (URI first, title otherwise) in fixed-size
// batches: members of a batch run concurrently, batches run one after another.
// A failed lookup drops that track only.
package resume
