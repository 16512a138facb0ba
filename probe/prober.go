package probe

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/signaling"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/timer"
)

// State is the prober's position in its lifecycle.
type State int

const (
	// StateIdle: no probe has run for the current signaling session.
	StateIdle State = iota
	// StateProbing: an attempt is in flight.
	StateProbing
	// StateConfirmed: UDP is reachable; terminal until the signaling
	// connection drops.
	StateConfirmed
	// StateRetrying: UDP unconfirmed; periodic re-attempts are scheduled.
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateConfirmed:
		return "confirmed"
	case StateRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Sender is the UDP side the prober drives: transport.Sender in production.
type Sender interface {
	Configure(userID, host string, port int) error
	SendProbe() error
	SetEnabled(enabled bool)
	RoutingKey() uint32
}

// Config tunes the probe protocol. Zero values take the defaults.
type Config struct {
	// InitialDelay gives the server time to register the session before
	// the first attempt. Skipped on retries.
	InitialDelay time.Duration
	// ProbeCount probes are sent per attempt; UDP is lossy and a single
	// probe proves nothing when it vanishes.
	ProbeCount int
	// ProbeInterval spaces the probes of one attempt.
	ProbeInterval time.Duration
	// AckTimeout bounds the wait for the out-of-band acknowledgment.
	AckTimeout time.Duration
	// RetryInterval spaces re-attempts while UDP stays unconfirmed.
	RetryInterval time.Duration
}

const (
	defaultInitialDelay  = 500 * time.Millisecond
	defaultProbeCount    = 3
	defaultProbeInterval = 200 * time.Millisecond
	defaultAckTimeout    = 2 * time.Second
	defaultRetryInterval = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.InitialDelay == 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.ProbeCount == 0 {
		c.ProbeCount = defaultProbeCount
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaultProbeInterval
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaultRetryInterval
	}
}

// Prober decides whether real audio may use UDP. It registers the routing
// key over signaling, fires a burst of probes, and races the server's
// acknowledgment against a timeout. Success opens the sender's audio gate;
// failure leaves audio on the fallback transport and retries quietly.
//
// None of its failure modes are surfaced to the user: an unreachable UDP
// path is a property of the network, not an error.
type Prober struct {
	cfg     Config
	channel signaling.Channel
	sender  Sender
	sched   timer.Scheduler
	log     *logrus.Entry

	mu         sync.Mutex
	state      State
	inFlight   bool
	attemptGen int

	userID string
	host   string
	port   int

	timeoutTimer timer.Timer
	retryTimer   timer.Timer
}

// New creates a prober. The scheduler must be background-capable so retry
// attempts survive process suspension.
func New(cfg Config, channel signaling.Channel, sender Sender, sched timer.Scheduler) *Prober {
	cfg.applyDefaults()
	if sched == nil {
		sched = timer.Background{}
	}
	return &Prober{
		cfg:     cfg,
		channel: channel,
		sender:  sender,
		sched:   sched,
		log:     logrus.WithField("component", "udp-prober"),
	}
}

// State returns the current probe state.
func (p *Prober) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin starts probing toward the endpoint announced in connection_ack.
// A probe already in flight, or an already-confirmed session, makes this a
// no-op rather than queuing another attempt.
func (p *Prober) Begin(userID, host string, port int) {
	p.mu.Lock()
	if p.inFlight || p.state == StateConfirmed {
		p.mu.Unlock()
		return
	}

	p.userID, p.host, p.port = userID, host, port
	p.state = StateProbing
	p.inFlight = true
	p.attemptGen++
	gen := p.attemptGen
	p.mu.Unlock()

	if err := p.sender.Configure(userID, host, port); err != nil {
		p.log.WithError(err).Warn("UDP sender configuration failed")
		p.resolve(gen, false)
		return
	}

	// Give the remote side a moment to finish registering the session.
	p.sched.AfterFunc(p.cfg.InitialDelay, func() { p.runAttempt(gen) })
}

// HandlePingAck resolves the in-flight attempt successfully. Called when
// udp_ping_ack arrives over signaling; late or duplicate acks are no-ops.
func (p *Prober) HandlePingAck() {
	p.mu.Lock()
	gen := p.attemptGen
	p.mu.Unlock()
	p.resolve(gen, true)
}

// HandleDisconnect resets the prober when the signaling channel drops. The
// in-flight attempt and the retry loop are both cancelled: a stale probe
// target is worse than no probe.
func (p *Prober) HandleDisconnect() {
	p.mu.Lock()
	p.attemptGen++
	p.inFlight = false
	p.state = StateIdle
	p.stopTimerLocked(&p.timeoutTimer)
	p.stopTimerLocked(&p.retryTimer)
	p.mu.Unlock()

	p.sender.SetEnabled(false)
}

// runAttempt performs one registration + probe burst.
func (p *Prober) runAttempt(gen int) {
	p.mu.Lock()
	if gen != p.attemptGen {
		p.mu.Unlock()
		return
	}

	// The channel may have dropped during the delay. Routine, not an
	// error: HandleDisconnect has reset or will reset the state.
	if !p.channel.Connected() {
		p.inFlight = false
		p.state = StateIdle
		p.mu.Unlock()
		return
	}

	routingKey := p.sender.RoutingKey()
	for i := 1; i < p.cfg.ProbeCount; i++ {
		delay := time.Duration(i) * p.cfg.ProbeInterval
		p.sched.AfterFunc(delay, func() { p.sendProbe(gen) })
	}
	p.timeoutTimer = p.sched.AfterFunc(p.cfg.AckTimeout, func() { p.resolve(gen, false) })
	p.mu.Unlock()

	if err := p.channel.Send(signaling.UDPRegister{
		Type:       signaling.TypeUDPRegister,
		UserIDHash: routingKey,
	}); err != nil {
		p.log.WithError(err).Debug("registration send failed")
	}
	p.sendProbe(gen)
}

func (p *Prober) sendProbe(gen int) {
	p.mu.Lock()
	stale := gen != p.attemptGen
	p.mu.Unlock()
	if stale {
		return
	}

	if err := p.sender.SendProbe(); err != nil {
		// Lost probes are what the burst and the timeout are for.
		p.log.WithError(err).Debug("probe send failed")
	}
}

// resolve finishes an attempt exactly once; the generation guard makes the
// loser of the ack-vs-timeout race a no-op.
func (p *Prober) resolve(gen int, confirmed bool) {
	p.mu.Lock()
	if gen != p.attemptGen || !p.inFlight {
		p.mu.Unlock()
		return
	}

	p.inFlight = false
	p.attemptGen++
	p.stopTimerLocked(&p.timeoutTimer)

	if confirmed {
		p.state = StateConfirmed
		p.stopTimerLocked(&p.retryTimer)
		p.mu.Unlock()

		p.sender.SetEnabled(true)
		p.log.Info("UDP path confirmed, audio enabled")
		return
	}

	p.state = StateRetrying
	p.scheduleRetryLocked()
	p.mu.Unlock()

	p.sender.SetEnabled(false)
	p.log.Debug("UDP probe unacknowledged, falling back")
}

func (p *Prober) scheduleRetryLocked() {
	if p.retryTimer != nil {
		return
	}
	p.retryTimer = p.sched.AfterFunc(p.cfg.RetryInterval, p.retryTick)
}

// retryTick re-enters probing without the initial delay. The sender is
// reconfigured each time so an earlier dial failure does not poison every
// subsequent attempt.
func (p *Prober) retryTick() {
	p.mu.Lock()
	p.retryTimer = nil
	if p.state != StateRetrying || p.inFlight || !p.channel.Connected() {
		p.mu.Unlock()
		return
	}

	p.state = StateProbing
	p.inFlight = true
	p.attemptGen++
	gen := p.attemptGen
	userID, host, port := p.userID, p.host, p.port
	p.mu.Unlock()

	if err := p.sender.Configure(userID, host, port); err != nil {
		p.log.WithError(err).Warn("UDP sender configuration failed")
		p.resolve(gen, false)
		return
	}
	p.runAttempt(gen)
}

func (p *Prober) stopTimerLocked(t *timer.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
