package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/crypto"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/wire"
)

// ErrNotConfigured is returned when audio or probes are sent before
// Configure has resolved a remote endpoint. Unlike delivery failures this is
// a programmer error, so it surfaces synchronously.
var ErrNotConfigured = errors.New("transport: sender not configured")

// Sender is the client-side UDP path. It owns one socket per configured
// endpoint, frames and chunks outgoing PCM, and holds the send gate the
// connectivity prober opens once UDP is confirmed reachable.
type Sender struct {
	mu         sync.Mutex
	conn       *net.UDPConn
	routingKey uint32
	userID     string

	key           crypto.Key
	cryptoEnabled bool

	maxPacket int

	seq     atomic.Uint32
	enabled atomic.Bool

	log *logrus.Entry
}

// NewSender creates an unconfigured sender. Audio is gated off until the
// prober confirms reachability via SetEnabled.
func NewSender() *Sender {
	return &Sender{
		maxPacket: wire.MaxPacketSize,
		log:       logrus.WithField("component", "udp-sender"),
	}
}

// Configure points the sender at a remote endpoint for a user. Calling it
// again replaces the socket; the sequence counter restarts because the remote
// session is new.
func (s *Sender) Configure(userID, host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("resolve UDP endpoint %s:%d: %w", host, port, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial UDP endpoint %s: %w", addr, err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.userID = userID
	s.routingKey = wire.HashIdentifier(userID)
	s.mu.Unlock()

	s.seq.Store(0)

	s.log.WithFields(logrus.Fields{
		"userId":     userID,
		"routingKey": s.routingKey,
		"endpoint":   addr.String(),
	}).Info("UDP sender configured")
	return nil
}

// EnableCrypto installs the session key received over signaling. Subsequent
// audio is sealed per chunk before framing.
func (s *Sender) EnableCrypto(key crypto.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.cryptoEnabled = true
}

// RoutingKey returns the configured routing key, or 0 when unconfigured.
func (s *Sender) RoutingKey() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routingKey
}

// SetEnabled opens or closes the audio send gate. The prober owns this:
// audio only flows over UDP once a probe has been acknowledged.
func (s *Sender) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether the audio send gate is open.
func (s *Sender) Enabled() bool {
	return s.enabled.Load()
}

// SendProbe writes one probe packet. Probes bypass the audio gate: they are
// how the gate gets opened in the first place.
func (s *Sender) SendProbe() error {
	s.mu.Lock()
	conn, routingKey := s.conn, s.routingKey
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConfigured
	}

	_, err := conn.Write(wire.EncodeProbePacket(routingKey))
	if err != nil {
		// Probe loss is routine; the caller's retry loop deals with it.
		s.log.WithError(err).Debug("probe send failed")
	}
	return err
}

// SendAudio chunks, optionally encrypts, frames and sends a PCM buffer. It
// returns the number of packets written. When the gate is closed the call is
// a silent no-op so callers can feed the sender unconditionally while the
// fallback transport carries the audio.
func (s *Sender) SendAudio(pcm []byte) (int, error) {
	if !s.enabled.Load() {
		return 0, nil
	}

	s.mu.Lock()
	conn := s.conn
	routingKey := s.routingKey
	key, encrypt := s.key, s.cryptoEnabled
	maxPacket := s.maxPacket
	s.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConfigured
	}

	// Budget the plaintext chunk so header plus encryption overhead still
	// fits the packet size, keeping sample alignment.
	maxChunk := maxPacket - wire.HeaderSize
	if encrypt {
		maxChunk -= crypto.Overhead
	}

	sent := 0
	for _, chunk := range wire.ChunkAudio(pcm, maxChunk) {
		payload := chunk
		if encrypt {
			sealed, err := crypto.Encrypt(chunk, key)
			if err != nil {
				return sent, fmt.Errorf("encrypt audio chunk: %w", err)
			}
			payload = sealed
		}

		seq := uint16(s.seq.Add(1) - 1)
		if _, err := conn.Write(wire.EncodeAudioPacket(routingKey, seq, payload)); err != nil {
			return sent, fmt.Errorf("send audio packet: %w", err)
		}
		sent++
	}
	return sent, nil
}

// Close releases the socket, closes the gate and wipes key material.
// Idempotent.
func (s *Sender) Close() error {
	s.enabled.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	crypto.WipeKey(&s.key)
	s.cryptoEnabled = false

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
