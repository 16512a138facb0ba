package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/crypto"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/wire"
)

// audioQueueDepth bounds the per-session audio queue. UDP audio is lossy by
// design, so a full queue drops the frame instead of blocking the receive
// loop.
const audioQueueDepth = 100

// Signaler delivers control messages to the session's client over its
// signaling connection. Implemented by the signaling server's per-connection
// handle.
type Signaler interface {
	// SendPingAck tells the client its UDP probe reached the server.
	SendPingAck() error
}

// AudioFrame is one decoded PCM chunk routed to the session's consumer.
type AudioFrame struct {
	Seq uint16
	PCM []byte
}

// Session is the per-user state the UDP receiver routes audio into. One
// session exists per connected user; its routing key is derived from the
// user identifier and its key material lives exactly as long as the session.
type Session struct {
	ID         string
	UserID     string
	RoutingKey uint32

	signaler Signaler

	mu            sync.RWMutex
	key           crypto.Key
	cryptoEnabled bool
	closed        bool

	audio chan AudioFrame
	done  chan struct{}

	log *logrus.Entry
}

// New creates a session for a user identifier. The routing key is computed
// here, once, so every collaborator sees the same value.
func New(userID string, signaler Signaler) *Session {
	routingKey := wire.HashIdentifier(userID)
	return &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoutingKey: routingKey,
		signaler:   signaler,
		audio:      make(chan AudioFrame, audioQueueDepth),
		done:       make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component":  "session",
			"userId":     userID,
			"routingKey": routingKey,
		}),
	}
}

// EnableCrypto installs the session's symmetric key. Audio arriving after
// this call is expected to be encrypted.
func (s *Session) EnableCrypto(key crypto.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.cryptoEnabled = true
}

// Crypto returns the session key and whether encryption is active.
func (s *Session) Crypto() (crypto.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.cryptoEnabled
}

// DeliverAudio queues a decoded frame for the session's consumer without
// blocking. It reports false when the frame was dropped, either because the
// queue is full (expected under load for UDP) or the session is closed.
func (s *Session) DeliverAudio(seq uint16, pcm []byte) bool {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false
	}

	select {
	case s.audio <- AudioFrame{Seq: seq, PCM: pcm}:
		return true
	default:
		return false
	}
}

// Audio is the stream of frames routed to this session.
func (s *Session) Audio() <-chan AudioFrame {
	return s.audio
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// NotifyPingAck forwards a probe acknowledgment over the signaling channel.
// Failures are logged, not propagated: the client will simply retry its
// probe.
func (s *Session) NotifyPingAck() {
	if s.signaler == nil {
		return
	}
	if err := s.signaler.SendPingAck(); err != nil {
		s.log.WithError(err).Debug("failed to send ping ack over signaling")
	}
}

// Close tears the session down: the key is wiped and the done channel is
// closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	crypto.WipeKey(&s.key)
	s.cryptoEnabled = false
	s.mu.Unlock()

	close(s.done)
	s.log.Debug("session closed")
}
