// Package lavalink implements types.AudioBackend on top of Lavalink v4 nodes.
//
// Each node is driven by a websocket connection (session id, player updates
// and track events) and a rate-limited REST client (track loading and player
// updates). Queues live in the client: the node only ever plays one track
// per guild, and the next one is sent when the node reports the previous
// one finished.
//
// Voice connection info is obtained through a types.VoiceConnector, normally
// the NATS gateway bridge.
package lavalink
