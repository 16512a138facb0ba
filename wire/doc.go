// Package wire implements the byte-level framing of the UDP audio protocol.
//
// Every datagram starts with a fixed 6-byte header:
//
//	Offset 0-3: routing key (uint32, big-endian) = FNV1a32(UTF8(userId))
//	Offset 4-5: sequence number (uint16, big-endian, wraps at 65536)
//	Offset 6+:  payload: ASCII "PING" for a probe, PCM16 audio otherwise
//
// The routing key addresses packets to a session without carrying the user
// identifier on every packet. Both ends must derive it identically, which is
// why HashIdentifier is pinned to FNV-1a with the standard offset basis and
// prime.
//
// The package is pure: no I/O, no state across calls. Chunking is provided
// here so the sender and tests share one definition of the even-length
// invariant for 16-bit PCM samples.
package wire
