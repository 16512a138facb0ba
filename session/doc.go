// Package session holds per-user session state for the UDP audio path and
// the registry the receiver uses to route packets.
//
// A session ties together the user's routing key, optional encryption key
// material, the signaling handle used for probe acknowledgments, and a
// bounded audio queue for the downstream consumer. The registry is a
// mutex-guarded map keyed by routing key; registrations are last-write-wins
// with a logged warning on collision.
package session
