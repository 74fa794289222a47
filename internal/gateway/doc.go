// Package gateway bridges workers to the chat gateway process over NATS
// request/reply.
//
// Workers do not hold a chat gateway connection themselves. They ask the
// gateway process whether guilds and channels exist, ask it to join or
// leave voice channels, and receive voice server moves on a per-worker
// subject:
//
//	chorus.gateway.<clientId>.lookup       GuildExists / ChannelExists
//	chorus.gateway.<clientId>.voice.join   JoinVoice
//	chorus.gateway.<clientId>.voice.leave  LeaveVoice
//	chorus.gateway.<clientId>.stats        guild count, polled for heartbeats
//	chorus.gateway.voice.<workerId>        voice server updates (publish only)
//
// Bridge is the worker side; Server is the gateway side and adapts any
// Handler (the real gateway, or a fake in tests).
package gateway
