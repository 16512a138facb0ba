// Package transport implements both ends of the UDP audio path.
//
// The Sender lives on the client: it chunks PCM16 capture into
// even-length packets, seals each chunk when session crypto is enabled, and
// sends probes for the connectivity prober. Audio is gated behind an
// enabled flag that only the prober flips, so unconfirmed networks fall
// back to the signaling transport without the caller noticing.
//
// The Receiver lives on the server: it owns the listening socket, routes
// datagrams to sessions by routing key, answers probes over each session's
// signaling channel, and keeps the drop/ping/decrypt counters the metrics
// exporter publishes. Per-packet failures are counted, never fatal; only
// the initial bind can fail loudly.
package transport
