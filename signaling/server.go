package signaling

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/crypto"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/session"
)

// ServerConfig describes what the server advertises to connecting clients.
type ServerConfig struct {
	// UDPHost and UDPPort form the endpoint sent in connection_ack. The
	// host is the externally reachable address, not the bind address.
	UDPHost string
	UDPPort int

	// CryptoEnabled generates a per-session key and includes it in
	// connection_ack.
	CryptoEnabled bool
}

// Server terminates client signaling connections next to the UDP receiver.
// It owns session lifecycle: a session is created per connection, registered
// for UDP on udp_register, and torn down when the connection ends.
type Server struct {
	cfg      ServerConfig
	registry *session.Registry
	upgrader websocket.Upgrader
	log      *logrus.Entry

	// OnSession, when set, receives each new session so the host can
	// consume its audio stream. Called before any audio can be routed.
	OnSession func(*session.Session)
}

// NewServer creates a signaling server over the given registry.
func NewServer(cfg ServerConfig, registry *session.Registry) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logrus.WithField("component", "signaling-server"),
	}
}

// clientConn wraps one websocket connection. It is the session's Signaler:
// probe acks travel back over it, never over UDP.
type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *clientConn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) SendPingAck() error {
	return c.send(Heartbeat{Type: TypeUDPPingAck})
}

// HandleWebSocket upgrades a client connection and services its control
// messages until it closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := &clientConn{conn: conn}
	sess := session.New(userID, client)
	log := s.log.WithFields(logrus.Fields{
		"userId":     userID,
		"routingKey": sess.RoutingKey,
	})

	ack := ConnectionAck{
		Type:    TypeConnectionAck,
		UDPHost: s.cfg.UDPHost,
		UDPPort: s.cfg.UDPPort,
	}
	if s.cfg.CryptoEnabled {
		key, err := crypto.GenerateKey()
		if err != nil {
			log.WithError(err).Error("session key generation failed")
			return
		}
		sess.EnableCrypto(key)
		ack.SessionKey = base64.StdEncoding.EncodeToString(key[:])
		crypto.ZeroBytes(key[:])
	}

	defer func() {
		s.registry.UnregisterSession(sess)
		sess.Close()
		log.Info("signaling connection closed")
	}()

	if s.OnSession != nil {
		s.OnSession(sess)
	}

	if err := client.send(ack); err != nil {
		log.WithError(err).Warn("failed to send connection ack")
		return
	}
	log.Info("signaling connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(client, sess, log, data)
	}
}

func (s *Server) handleMessage(client *clientConn, sess *session.Session, log *logrus.Entry, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		log.WithError(err).Debug("unparseable control message")
		return
	}

	switch env.Type {
	case TypeUDPRegister:
		var msg UDPRegister
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("malformed udp_register")
			return
		}
		// The hash is recomputed server-side; a mismatch means the client's
		// FNV implementation has drifted from the wire contract.
		if msg.UserIDHash != sess.RoutingKey {
			log.WithField("clientHash", msg.UserIDHash).Warn("client routing key disagrees with server hash")
		}
		s.registry.Register(sess)

	case TypeUDPUnregister:
		s.registry.UnregisterSession(sess)

	case TypePing:
		if err := client.send(Heartbeat{Type: TypePong}); err != nil {
			log.WithError(err).Debug("pong send failed")
		}

	case TypePong:
		// Liveness refresh only; the read itself already proved it.

	default:
		log.WithField("type", env.Type).Debug("unhandled control message")
	}
}
