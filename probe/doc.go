// Package probe verifies UDP reachability before any audio is trusted to
// it. Many networks silently eat UDP: carrier NATs, enterprise firewalls,
// captive portals. Instead of discovering this through lost audio, the
// prober sends a short burst of probe packets after session start and waits
// for the server's acknowledgment on the signaling channel. Only a
// confirmed path opens the sender's audio gate; an unconfirmed one is
// retried in the background while audio keeps using the fallback transport.
package probe
