// Package live implements the Live Dispatcher (C7): exactly-once
// per-channel fan-out of poll updates to connected viewers. Transport
// is adapted from the teacher's internal/events (Redis pub/sub,
// cross-process) and internal/websocket (per-connection hub); unlike
// the teacher's per-user hub multiplexing many trips, a live Channel
// here is per-poll and both the public and admin token resolve to it.
package live

// CanonicalChannelID maps a poll to the one channel both its public
// and admin token address (§4.7: "both addressable"). Handlers resolve
// whichever token they were given to a poll first, then always pass
// the poll id as the channel token to internal/events, so publishing
// and subscribing never need to know which token a viewer connected
// with.
func CanonicalChannelID(pollID string) string {
	return pollID
}
