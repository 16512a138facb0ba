package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/timer"
)

// fakeConn is an in-memory Conn. Reads block on the in channel; writes are
// recorded for inspection.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte

	in        chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case err := <-f.errs:
		return 0, nil, err
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed network connection")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) deliver(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.in <- data
}

func (f *fakeConn) sentOfType(t MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		env, err := ParseEnvelope(w)
		if err == nil && env.Type == t {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	failing bool
	dials   int
}

func (d *fakeDialer) Dial(string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failing {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		panic("no connection dialed yet")
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// statusRecorder collects every notification the monitor broadcasts.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *statusRecorder) count(s Status) int {
	n := 0
	for _, got := range r.all() {
		if got == s {
			n++
		}
	}
	return n
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeDialer, *timer.Mock, *statusRecorder) {
	t.Helper()
	dialer := &fakeDialer{}
	sched := timer.NewMock()
	m := NewMonitor(MonitorConfig{URL: "ws://signaling.test/ws"}, dialer, sched)

	rec := &statusRecorder{}
	m.OnStatus(rec.record)
	t.Cleanup(m.Disconnect)
	return m, dialer, sched, rec
}

// waitProcessed blocks until the monitor's read loop has consumed every
// message delivered so far, observable through the lastMessage timestamp.
func waitProcessed(t *testing.T, m *Monitor, after time.Time) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return !m.lastMessage.Before(after)
	}, 2*time.Second, time.Millisecond)
}

func TestMonitorConnectTransitions(t *testing.T) {
	m, dialer, _, rec := newTestMonitor(t)

	require.NoError(t, m.Connect())

	assert.True(t, m.Connected())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, rec.all())
	assert.Equal(t, 1, dialer.dialCount())

	// Connecting while connected is a no-op.
	require.NoError(t, m.Connect())
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 2, len(rec.all()), "no duplicate notifications")
}

func TestMonitorSendWhileDisconnected(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	assert.ErrorIs(t, m.Send(Heartbeat{Type: TypePing}), ErrNotConnected)
}

func TestMonitorHeartbeatOriginated(t *testing.T) {
	m, dialer, sched, _ := newTestMonitor(t)
	require.NoError(t, m.Connect())
	conn := dialer.last()

	sched.Advance(defaultHeartbeatInterval)
	assert.Equal(t, 1, conn.sentOfType(TypePing))

	sched.Advance(defaultHeartbeatInterval)
	assert.Equal(t, 2, conn.sentOfType(TypePing))
}

func TestMonitorEchoesPong(t *testing.T) {
	m, dialer, sched, _ := newTestMonitor(t)
	require.NoError(t, m.Connect())
	conn := dialer.last()

	before := sched.Now()
	sched.Advance(time.Millisecond)
	conn.deliver(Heartbeat{Type: TypePing})
	waitProcessed(t, m, before.Add(time.Millisecond))

	require.Eventually(t, func() bool {
		return conn.sentOfType(TypePong) == 1
	}, 2*time.Second, time.Millisecond)
}

func TestMonitorPongConsumedSilently(t *testing.T) {
	m, dialer, sched, _ := newTestMonitor(t)

	var forwarded int
	m.OnMessage(TypePong, func(json.RawMessage) { forwarded++ })
	require.NoError(t, m.Connect())
	conn := dialer.last()

	before := sched.Now()
	sched.Advance(time.Millisecond)
	conn.deliver(Heartbeat{Type: TypePong})
	waitProcessed(t, m, before.Add(time.Millisecond))

	assert.Zero(t, forwarded, "heartbeat responses must not reach application handlers")
}

func TestMonitorDispatchesApplicationMessages(t *testing.T) {
	m, dialer, sched, _ := newTestMonitor(t)

	got := make(chan ConnectionAck, 1)
	m.OnMessage(TypeConnectionAck, func(raw json.RawMessage) {
		var ack ConnectionAck
		if err := json.Unmarshal(raw, &ack); err == nil {
			got <- ack
		}
	})
	require.NoError(t, m.Connect())

	sched.Advance(time.Millisecond)
	dialer.last().deliver(ConnectionAck{Type: TypeConnectionAck, UDPHost: "10.0.0.1", UDPPort: 8000})

	select {
	case ack := <-got:
		assert.Equal(t, "10.0.0.1", ack.UDPHost)
		assert.Equal(t, 8000, ack.UDPPort)
	case <-time.After(2 * time.Second):
		t.Fatal("connection_ack not dispatched")
	}
}

func TestMonitorForceClosesStalledConnection(t *testing.T) {
	m, dialer, sched, rec := newTestMonitor(t)
	require.NoError(t, m.Connect())
	first := dialer.last()

	// Nothing arrives; checks at 2,4,6s are within the stall window, the
	// 8s check crosses it and must force-close exactly once.
	sched.Advance(defaultStallTimeout + 2*defaultCheckInterval)

	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 1, rec.count(StatusDisconnected), "force-close must notify exactly once")

	select {
	case <-first.closed:
	default:
		t.Error("stalled connection was not closed")
	}

	// The scheduled reconnect redials and recovers.
	sched.Advance(defaultReconnectInterval)
	assert.Equal(t, 2, dialer.dialCount())
	assert.True(t, m.Connected())
}

func TestMonitorInboundTrafficPreventsForceClose(t *testing.T) {
	m, dialer, sched, rec := newTestMonitor(t)
	require.NoError(t, m.Connect())
	conn := dialer.last()

	// Feed a heartbeat inside every stall window.
	for i := 0; i < 5; i++ {
		sched.Advance(2 * defaultCheckInterval)
		before := sched.Now()
		conn.deliver(Heartbeat{Type: TypePong})
		waitProcessed(t, m, before)
	}

	assert.True(t, m.Connected(), "live connection must not be force-closed")
	assert.Zero(t, rec.count(StatusDisconnected))
}

func TestMonitorReadErrorTriggersReconnect(t *testing.T) {
	m, dialer, sched, rec := newTestMonitor(t)
	require.NoError(t, m.Connect())
	conn := dialer.last()

	conn.errs <- errors.New("connection reset by peer")

	require.Eventually(t, func() bool {
		return m.Status() == StatusError
	}, 2*time.Second, time.Millisecond)

	sched.Advance(defaultReconnectInterval)
	assert.Equal(t, 2, dialer.dialCount())
	assert.True(t, m.Connected())
	assert.Equal(t, 1, rec.count(StatusError))
}

func TestMonitorCleanCloseBecomesDisconnected(t *testing.T) {
	m, dialer, _, _ := newTestMonitor(t)
	require.NoError(t, m.Connect())

	dialer.last().errs <- &websocket.CloseError{Code: websocket.CloseNormalClosure}

	require.Eventually(t, func() bool {
		return m.Status() == StatusDisconnected
	}, 2*time.Second, time.Millisecond)
}

func TestMonitorManualDisconnectSuppressesReconnect(t *testing.T) {
	m, dialer, sched, rec := newTestMonitor(t)
	require.NoError(t, m.Connect())

	m.Disconnect()
	assert.Equal(t, StatusDisconnected, m.Status())

	sched.Advance(time.Hour)
	assert.Equal(t, 1, dialer.dialCount(), "manual disconnect must suppress reconnection")
	assert.Equal(t, 1, rec.count(StatusDisconnected))

	// An explicit Connect re-enables everything.
	require.NoError(t, m.Connect())
	assert.True(t, m.Connected())
	assert.Equal(t, 2, dialer.dialCount())
}

func TestMonitorDialFailureRetries(t *testing.T) {
	m, dialer, sched, _ := newTestMonitor(t)
	dialer.failing = true

	assert.Error(t, m.Connect())
	assert.Equal(t, StatusError, m.Status())

	// Retries keep failing on the reconnect cadence.
	sched.Advance(defaultReconnectInterval)
	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, StatusError, m.Status())

	// Then the network comes back.
	dialer.mu.Lock()
	dialer.failing = false
	dialer.mu.Unlock()

	sched.Advance(defaultReconnectInterval)
	assert.True(t, m.Connected())
}

func TestMonitorStaleConnectionErrorIgnoredAfterForceClose(t *testing.T) {
	m, dialer, sched, rec := newTestMonitor(t)
	require.NoError(t, m.Connect())
	first := dialer.last()

	sched.Advance(defaultStallTimeout + 2*defaultCheckInterval)
	require.Equal(t, StatusDisconnected, m.Status())

	// The orphaned read loop reports its close error late; it must not
	// produce a second transition or another reconnect timer.
	first.errs <- errors.New("use of closed network connection")
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, rec.count(StatusDisconnected))
	assert.Equal(t, StatusDisconnected, m.Status())
}
