// Package signaling implements the reliable control channel beside the UDP
// audio path: JSON message framing, the server endpoint that manages session
// lifecycle, and the client-side liveness monitor.
//
// The monitor exists because an idle websocket can die silently: NAT state
// expires, radios hand over, and the OS keepalive only notices minutes
// later. Both sides exchange application-level ping/pong, every inbound
// message refreshes a last-seen timestamp, and a connection silent past the
// stall threshold is force-closed and redialed. Status transitions
// (disconnected, connecting, connected, error) are de-duplicated before
// reaching listeners.
//
// Registration, probe acknowledgments and session key delivery all ride
// this channel; see the message types for the exact wire contract.
package signaling
