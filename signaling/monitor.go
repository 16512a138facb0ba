package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/timer"
)

// ErrNotConnected is returned by Send while the channel is down. Callers
// treat it as "skip and wait for reconnect", not as fatal.
var ErrNotConnected = errors.New("signaling: not connected")

// Conn is the subset of *websocket.Conn the monitor drives. Tests inject
// fakes; production uses gorilla connections via WebsocketDialer.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens signaling connections. Abstracted so liveness behavior is
// testable without sockets.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(url string) (Conn, error) {
	wsDialer := d.Dialer
	if wsDialer == nil {
		wsDialer = websocket.DefaultDialer
	}
	conn, _, err := wsDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MonitorConfig tunes the liveness protocol. Zero values take the defaults
// below.
type MonitorConfig struct {
	URL string

	// HeartbeatInterval is how often the monitor originates a ping.
	HeartbeatInterval time.Duration
	// CheckInterval is how often the stall check runs.
	CheckInterval time.Duration
	// StallTimeout is the silence threshold that force-closes the
	// connection, roughly three missed heartbeat cycles. OS-level TCP
	// keepalive takes minutes to notice a dead path; this takes seconds.
	StallTimeout time.Duration
	// ReconnectInterval spaces automatic reconnection attempts.
	ReconnectInterval time.Duration
}

const (
	defaultHeartbeatInterval = 2 * time.Second
	defaultCheckInterval     = 2 * time.Second
	defaultStallTimeout      = 6 * time.Second
	defaultReconnectInterval = 5 * time.Second
)

func (c *MonitorConfig) applyDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = defaultStallTimeout
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
}

// Monitor guards a client signaling connection with a bidirectional
// heartbeat and drives automatic reconnection. It implements Channel.
//
// All timers come from the injected Scheduler, which must be
// background-capable in production: a suspended process that stops checking
// liveness would hold a dead socket open indefinitely.
type Monitor struct {
	cfg    MonitorConfig
	dialer Dialer
	sched  timer.Scheduler
	log    *logrus.Entry

	mu          sync.Mutex
	conn        Conn
	gen         int
	status      Status
	lastMessage time.Time
	manual      bool
	pending     []Status

	heartbeatTimer timer.Timer
	checkTimer     timer.Timer
	reconnectTimer timer.Timer

	statusFns []func(Status)
	handlers  map[MessageType]func(json.RawMessage)

	writeMu sync.Mutex
}

// NewMonitor creates a monitor for the given endpoint. Nothing happens until
// Connect.
func NewMonitor(cfg MonitorConfig, dialer Dialer, sched timer.Scheduler) *Monitor {
	cfg.applyDefaults()
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if sched == nil {
		sched = timer.Background{}
	}
	return &Monitor{
		cfg:      cfg,
		dialer:   dialer,
		sched:    sched,
		status:   StatusDisconnected,
		handlers: make(map[MessageType]func(json.RawMessage)),
		log:      logrus.WithField("component", "signaling-monitor"),
	}
}

// OnStatus registers a listener for status transitions. Consecutive
// identical statuses are de-duplicated before listeners see them. Register
// before Connect.
func (m *Monitor) OnStatus(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusFns = append(m.statusFns, fn)
}

// OnMessage registers the handler for one message type. Heartbeat responses
// are consumed internally and never reach handlers. Register before Connect;
// one handler per type.
func (m *Monitor) OnMessage(t MessageType, fn func(json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = fn
}

// Status returns the current connection status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connected implements Channel.
func (m *Monitor) Connected() bool {
	return m.Status() == StatusConnected
}

// Connect establishes the signaling connection and arms the liveness
// timers. It also clears the manual-disconnect flag, re-enabling automatic
// reconnection. Connecting while already connected is a no-op.
func (m *Monitor) Connect() error {
	m.mu.Lock()
	m.manual = false
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return nil
	}
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	m.notifyPending()

	return m.dialAndInstall()
}

// Disconnect closes the connection and suppresses reconnection until the
// next Connect call.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.gen++
	m.stopTimersLocked()
	m.stopTimerLocked(&m.reconnectTimer)
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()
	m.notifyPending()
}

// Send implements Channel. Writes are serialized; gorilla connections do not
// allow concurrent writers.
func (m *Monitor) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dialAndInstall performs one connection attempt and, on success, installs
// the connection under a fresh generation.
func (m *Monitor) dialAndInstall() error {
	conn, err := m.dialer.Dial(m.cfg.URL)

	m.mu.Lock()
	if m.manual {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}

	if err != nil {
		m.setStatusLocked(StatusError)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.notifyPending()
		m.log.WithError(err).Debug("signaling dial failed")
		return err
	}

	m.conn = conn
	m.gen++
	gen := m.gen
	m.lastMessage = m.sched.Now()
	m.stopTimerLocked(&m.reconnectTimer)
	m.armTimersLocked(gen)
	m.setStatusLocked(StatusConnected)
	m.mu.Unlock()
	m.notifyPending()

	m.log.Info("signaling connected")
	go m.readLoop(conn, gen)
	return nil
}

func (m *Monitor) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		m.handleMessage(gen, data)
	}
}

func (m *Monitor) handleMessage(gen int, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		m.log.WithError(err).Debug("unparseable signaling message")
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	// Every inbound message proves the connection is alive, heartbeats
	// included.
	m.lastMessage = m.sched.Now()
	handler := m.handlers[env.Type]
	m.mu.Unlock()

	switch env.Type {
	case TypePong:
		// Heartbeat response; consumed silently.
	case TypePing:
		if err := m.Send(Heartbeat{Type: TypePong}); err != nil && !errors.Is(err, ErrNotConnected) {
			m.log.WithError(err).Debug("pong send failed")
		}
	default:
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

// handleReadError is the close/error path for a connection the monitor did
// not force-close itself. A stale generation means the monitor already
// detached this connection and its fate is irrelevant.
func (m *Monitor) handleReadError(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	m.gen++
	m.conn = nil
	m.stopTimersLocked()

	var closeErr *websocket.CloseError
	switch {
	case m.manual:
		m.setStatusLocked(StatusDisconnected)
	case errors.As(err, &closeErr):
		m.setStatusLocked(StatusDisconnected)
		m.scheduleReconnectLocked()
	default:
		m.setStatusLocked(StatusError)
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()
	m.notifyPending()

	m.log.WithError(err).Debug("signaling connection lost")
}

// heartbeatTick originates a ping and re-arms itself.
func (m *Monitor) heartbeatTick(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusConnected {
		m.mu.Unlock()
		return
	}
	m.heartbeatTimer = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.heartbeatTick(gen) })
	m.mu.Unlock()

	if err := m.Send(Heartbeat{Type: TypePing}); err != nil {
		// The read loop will observe the dead connection; nothing to do.
		m.log.WithError(err).Debug("heartbeat send failed")
	}
}

// checkTick force-closes the connection when nothing has been received
// within the stall window. Handlers are detached first (generation bump) so
// the read loop's close error cannot double-trigger reconnect.
func (m *Monitor) checkTick(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusConnected {
		m.mu.Unlock()
		return
	}

	if m.sched.Now().Sub(m.lastMessage) <= m.cfg.StallTimeout {
		m.checkTimer = m.sched.AfterFunc(m.cfg.CheckInterval, func() { m.checkTick(gen) })
		m.mu.Unlock()
		return
	}

	m.gen++
	m.stopTimersLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setStatusLocked(StatusDisconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()
	m.notifyPending()

	m.log.Warn("signaling connection stalled, force-closing")
}

func (m *Monitor) reconnectTick() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.manual || (m.status != StatusDisconnected && m.status != StatusError) {
		m.mu.Unlock()
		return
	}
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	m.notifyPending()

	if err := m.dialAndInstall(); err != nil {
		m.log.WithError(err).Debug("reconnect attempt failed")
	}
}

func (m *Monitor) armTimersLocked(gen int) {
	m.heartbeatTimer = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.heartbeatTick(gen) })
	m.checkTimer = m.sched.AfterFunc(m.cfg.CheckInterval, func() { m.checkTick(gen) })
}

// stopTimersLocked clears the per-connection timers. Always runs before a
// new connection attempt so an orphaned timer cannot fire against a newer
// connection.
func (m *Monitor) stopTimersLocked() {
	m.stopTimerLocked(&m.heartbeatTimer)
	m.stopTimerLocked(&m.checkTimer)
}

func (m *Monitor) stopTimerLocked(t *timer.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (m *Monitor) scheduleReconnectLocked() {
	if m.manual || m.reconnectTimer != nil {
		return
	}
	m.reconnectTimer = m.sched.AfterFunc(m.cfg.ReconnectInterval, m.reconnectTick)
}

// setStatusLocked records a transition, de-duplicating consecutive identical
// statuses. Listener invocation is deferred to notifyPending, outside the
// lock.
func (m *Monitor) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.pending = append(m.pending, s)
}

func (m *Monitor) notifyPending() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	fns := append(([]func(Status))(nil), m.statusFns...)
	m.mu.Unlock()

	for _, status := range pending {
		for _, fn := range fns {
			fn(status)
		}
	}
}
