package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/crypto"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/session"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/wire"
)

const (
	// readBufferBytes is the kernel receive buffer requested for the
	// listening socket. Bursty mobile uplinks overflow the default.
	readBufferBytes = 1024 * 1024

	// maxDatagramSize is the read buffer per datagram. Larger than the
	// protocol budget so oversized packets are observed and dropped rather
	// than truncated.
	maxDatagramSize = 4096

	// statsLogInterval controls the periodic receive-path stats log.
	statsLogInterval = 1000
)

// Stats is a snapshot of the receiver's counters, consumed by the metrics
// exporter. Routed audio aside, this is the receiver's only observable side
// channel.
type Stats struct {
	Received        uint64
	Dropped         uint64
	Pings           uint64
	Decrypted       uint64
	DecryptFailures uint64
}

// ReceiverConfig carries the listen parameters for the server-side UDP
// socket.
type ReceiverConfig struct {
	BindAddress string
	Port        int

	// ReadBuffer overrides the kernel receive buffer size; zero keeps
	// the built-in default.
	ReadBuffer int
}

// Receiver is the server-side UDP path: it owns the listening socket,
// demultiplexes datagrams by routing key against the session registry, and
// answers probes via each session's signaling channel.
type Receiver struct {
	cfg      ReceiverConfig
	registry *session.Registry

	conn *net.UDPConn
	wg   sync.WaitGroup

	stopOnce sync.Once

	received        atomic.Uint64
	dropped         atomic.Uint64
	pings           atomic.Uint64
	decrypted       atomic.Uint64
	decryptFailures atomic.Uint64

	log *logrus.Entry
}

// NewReceiver creates a receiver bound to nothing yet. Start binds the
// socket. A zero port lets the OS choose one, which tests rely on; the
// production default lives in the config package.
func NewReceiver(cfg ReceiverConfig, registry *session.Registry) *Receiver {
	return &Receiver{
		cfg:      cfg,
		registry: registry,
		log:      logrus.WithField("component", "udp-receiver"),
	}
}

// Start binds the UDP socket and launches the receive loop. A bind failure
// is a startup-time hard requirement and propagates to the caller; nothing
// here retries it.
func (r *Receiver) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", r.cfg.BindAddress, r.cfg.Port))
	if err != nil {
		return fmt.Errorf("resolve UDP listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind UDP port %d: %w", r.cfg.Port, err)
	}
	r.conn = conn

	readBuffer := r.cfg.ReadBuffer
	if readBuffer == 0 {
		readBuffer = readBufferBytes
	}
	if err := conn.SetReadBuffer(readBuffer); err != nil {
		r.log.WithError(err).Warn("failed to grow UDP read buffer")
	}

	r.log.WithField("address", conn.LocalAddr().String()).Info("UDP audio receiver started")

	r.wg.Add(1)
	go r.readLoop()
	return nil
}

// LocalAddr returns the bound address, useful when Port was 0.
func (r *Receiver) LocalAddr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stats returns a snapshot of the receive counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Received:        r.received.Load(),
		Dropped:         r.dropped.Load(),
		Pings:           r.pings.Load(),
		Decrypted:       r.decrypted.Load(),
		DecryptFailures: r.decryptFailures.Load(),
	}
}

// Sessions reports the registered-session gauge for monitoring.
func (r *Receiver) Sessions() int {
	return r.registry.Len()
}

// Stop closes the socket, waits for the receive loop, clears the registry
// and logs final counters. Idempotent.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		if r.conn != nil {
			r.conn.Close()
		}
		r.wg.Wait()
		r.registry.Clear()

		stats := r.Stats()
		r.log.WithFields(logrus.Fields{
			"received":        stats.Received,
			"dropped":         stats.Dropped,
			"pings":           stats.Pings,
			"decrypted":       stats.Decrypted,
			"decryptFailures": stats.DecryptFailures,
		}).Info("UDP audio receiver stopped")
	})
}

func (r *Receiver) readLoop() {
	defer r.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, remoteAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosedConnError(err) {
				return
			}
			r.log.WithError(err).Debug("UDP read error")
			continue
		}

		r.handleDatagram(buf[:n], remoteAddr)
	}
}

func isClosedConnError(err error) bool {
	opErr, ok := err.(*net.OpError)
	return ok && opErr.Err.Error() == "use of closed network connection"
}

// handleDatagram processes one inbound packet. Everything that can go wrong
// on a single packet is counted and dropped; nothing here may take down the
// read loop.
func (r *Receiver) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	routingKey, seq, payload, err := wire.DecodeHeader(data)
	if err != nil {
		r.dropped.Add(1)
		return
	}

	if wire.IsProbePacket(payload) {
		r.handleProbe(routingKey, remoteAddr)
		return
	}

	sess, ok := r.registry.Lookup(routingKey)
	if !ok {
		// Normal: audio can arrive before registration completes or after
		// teardown.
		r.dropped.Add(1)
		return
	}

	pcm, ok := r.decodePayload(sess, payload)
	if !ok {
		return
	}

	r.received.Add(1)
	if r.received.Load()%statsLogInterval == 0 {
		stats := r.Stats()
		r.log.WithFields(logrus.Fields{
			"received": stats.Received,
			"dropped":  stats.Dropped,
			"pings":    stats.Pings,
		}).Debug("UDP receive stats")
	}

	r.forwardAudio(sess, seq, pcm)
}

// decodePayload decrypts (when the session has crypto enabled), trims an odd
// trailing byte and rejects empty results. A false return means the packet
// was counted and dropped.
func (r *Receiver) decodePayload(sess *session.Session, payload []byte) ([]byte, bool) {
	pcm := payload
	if key, enabled := sess.Crypto(); enabled {
		opened, ok := crypto.Decrypt(payload, key)
		if !ok {
			r.decryptFailures.Add(1)
			r.dropped.Add(1)
			return nil, false
		}
		r.decrypted.Add(1)
		pcm = opened
	} else {
		// The read buffer is reused; audio handed to the session must own
		// its bytes. Decrypt already allocates.
		pcm = append([]byte(nil), payload...)
	}

	// Should not happen with a conforming sender, but a torn 16-bit sample
	// is worse than a missing one.
	if len(pcm)%2 == 1 {
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		r.dropped.Add(1)
		return nil, false
	}
	return pcm, true
}

// forwardAudio hands a decoded frame to the session consumer with per-packet
// isolation: a panicking consumer loses one packet, never the loop.
func (r *Receiver) forwardAudio(sess *session.Session, seq uint16, pcm []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"userId": sess.UserID,
				"seq":    seq,
				"panic":  rec,
			}).Error("audio consumer panicked, packet dropped")
		}
	}()

	if !sess.DeliverAudio(seq, pcm) {
		// Queue full or session closing: expected behavior for UDP.
		r.dropped.Add(1)
	}
}

// handleProbe answers a connectivity probe. The ack travels back over the
// session's signaling channel, not UDP: the client is asking "did my UDP
// packet get through", and only a reliable channel can answer that usefully.
func (r *Receiver) handleProbe(routingKey uint32, remoteAddr *net.UDPAddr) {
	r.pings.Add(1)

	sess, ok := r.registry.Lookup(routingKey)
	if !ok {
		r.log.WithFields(logrus.Fields{
			"routingKey": routingKey,
			"remoteAddr": remoteAddr.String(),
		}).Debug("probe for unknown routing key")
		return
	}

	r.log.WithFields(logrus.Fields{
		"userId":     sess.UserID,
		"routingKey": routingKey,
		"remoteAddr": remoteAddr.String(),
	}).Debug("UDP probe received")

	sess.NotifyPingAck()
}
