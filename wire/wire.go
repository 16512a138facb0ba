package wire

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
)

// Packet layout constants. These are a cross-process contract shared with the
// mobile client; changing any of them breaks every deployed client.
const (
	// HeaderSize is the fixed size of the packet header:
	// 4 bytes routing key (big-endian) + 2 bytes sequence (big-endian).
	HeaderSize = 6

	// ProbeMarker is the literal payload of a connectivity probe packet.
	ProbeMarker = "PING"

	// DefaultPort is the UDP port the audio receiver listens on.
	DefaultPort = 8000

	// MaxPacketSize is the total on-wire budget for a single datagram,
	// header included. Kept well under typical MTU to avoid fragmentation.
	MaxPacketSize = 1024
)

// ErrPacketTooShort is returned by DecodeHeader for datagrams smaller than
// the fixed header.
var ErrPacketTooShort = errors.New("wire: packet shorter than header")

// HashIdentifier derives the 32-bit routing key for a user identifier using
// FNV-1a over its UTF-8 bytes (offset basis 0x811c9dc5, prime 0x01000193).
// Client and server must compute this identically, so it is pinned to FNV-1a
// and covered by fixed test vectors.
func HashIdentifier(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

// EncodeAudioPacket frames a payload with the 6-byte header. The payload is
// not validated beyond being copied; callers are responsible for chunking and
// even-length alignment.
func EncodeAudioPacket(routingKey uint32, seq uint16, payload []byte) []byte {
	packet := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(packet[0:4], routingKey)
	binary.BigEndian.PutUint16(packet[4:6], seq)
	copy(packet[HeaderSize:], payload)
	return packet
}

// EncodeProbePacket frames a connectivity probe. Probes always carry
// sequence 0.
func EncodeProbePacket(routingKey uint32) []byte {
	return EncodeAudioPacket(routingKey, 0, []byte(ProbeMarker))
}

// DecodeHeader splits a datagram into routing key, sequence and the remaining
// payload. The returned payload aliases the input; callers that retain it
// past the read buffer's reuse must copy.
func DecodeHeader(packet []byte) (routingKey uint32, seq uint16, payload []byte, err error) {
	if len(packet) < HeaderSize {
		return 0, 0, nil, ErrPacketTooShort
	}
	routingKey = binary.BigEndian.Uint32(packet[0:4])
	seq = binary.BigEndian.Uint16(packet[4:6])
	return routingKey, seq, packet[HeaderSize:], nil
}

// IsProbePacket reports whether a decoded payload is a connectivity probe,
// i.e. starts with the probe marker.
func IsProbePacket(payload []byte) bool {
	return len(payload) >= len(ProbeMarker) && string(payload[:len(ProbeMarker)]) == ProbeMarker
}

// ChunkAudio splits PCM16 audio into chunks of at most maxChunk bytes. An odd
// maxChunk is rounded down so a 16-bit sample is never split across packets;
// every chunk is even-length and only the last may be shorter. The result is
// computed eagerly and the slices alias payload.
func ChunkAudio(payload []byte, maxChunk int) [][]byte {
	maxChunk &^= 1
	if maxChunk <= 0 || len(payload) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(payload)+maxChunk-1)/maxChunk)
	for off := 0; off < len(payload); off += maxChunk {
		end := off + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}
