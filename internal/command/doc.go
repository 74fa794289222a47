// Package command serves session commands to a worker over NATS.
//
// Each worker listens on chorus.cmd.<workerId>. The sender (the chat
// gateway, or an operator tool via Send) resolves the owning worker first;
// a worker that no longer owns the guild replies with code
// "ownership_conflict" so the sender can resolve again and retry.
package command
