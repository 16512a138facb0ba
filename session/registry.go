package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps routing keys to live sessions. It is the one structure
// mutated from multiple goroutines (signaling connections register, the UDP
// receive loop looks up, teardown sweeps), so every access goes through the
// mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	log      *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint32]*Session),
		log:      logrus.WithField("component", "session-registry"),
	}
}

// Register installs a session under its routing key. The hash space is only
// 32 bits, so two users can collide; last write wins, and the collision is
// logged so operators can see misrouting when it happens. Rejecting the
// newer registration would strand the newer user, which is worse.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[s.RoutingKey]; ok && existing.ID != s.ID {
		r.log.WithFields(logrus.Fields{
			"routingKey":   s.RoutingKey,
			"existingUser": existing.UserID,
			"newUser":      s.UserID,
		}).Warn("routing key collision, replacing existing registration")
	}
	r.sessions[s.RoutingKey] = s

	r.log.WithFields(logrus.Fields{
		"userId":     s.UserID,
		"routingKey": s.RoutingKey,
	}).Info("session registered for UDP audio")
}

// Lookup resolves a routing key to its session.
func (r *Registry) Lookup(routingKey uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[routingKey]
	return s, ok
}

// Unregister removes the entry for a routing key, if present.
func (r *Registry) Unregister(routingKey uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[routingKey]; ok {
		delete(r.sessions, routingKey)
		r.log.WithFields(logrus.Fields{
			"userId":     s.UserID,
			"routingKey": routingKey,
		}).Info("session unregistered from UDP audio")
	}
}

// UnregisterSession removes a session wherever it is registered. This is the
// teardown path for callers that hold the handle but not the key; after a
// collision the key may already point at a different session, which must not
// be removed.
func (r *Registry) UnregisterSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, registered := range r.sessions {
		if registered.ID == s.ID {
			delete(r.sessions, key)
			r.log.WithFields(logrus.Fields{
				"userId":     s.UserID,
				"routingKey": key,
			}).Info("session unregistered from UDP audio")
			return
		}
	}
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Clear drops every registration. Used on receiver shutdown; the sessions
// themselves are owned and closed by the signaling layer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[uint32]*Session)
}
