package signaling

import "encoding/json"

// MessageType tags every JSON control message on the signaling channel.
type MessageType string

const (
	// TypeConnectionAck is sent server → client at session start. It carries
	// the UDP endpoint and, when encryption is enabled, the session key.
	TypeConnectionAck MessageType = "connection_ack"

	// TypeUDPRegister is sent client → server to register the routing key
	// for UDP audio.
	TypeUDPRegister MessageType = "udp_register"

	// TypeUDPUnregister is sent client → server to drop the registration.
	TypeUDPUnregister MessageType = "udp_unregister"

	// TypeUDPPingAck is sent server → client when the UDP receiver saw a
	// probe for this session's routing key.
	TypeUDPPingAck MessageType = "udp_ping_ack"

	// TypePing and TypePong form the bidirectional application-level
	// heartbeat. Either side may originate a ping; the receiver echoes a
	// pong, and both directions refresh liveness.
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Envelope is the minimal decode of any control message, enough to dispatch
// on type.
type Envelope struct {
	Type MessageType `json:"type"`
}

// ParseEnvelope extracts the message type from a raw control message.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// ConnectionAck tells the client where UDP audio should go. SessionKey is
// the base64 encoding of the 32-byte symmetric key and is only present when
// encryption is enabled; it rides this message because the signaling channel
// is already encrypted end to end, which UDP is not.
type ConnectionAck struct {
	Type       MessageType `json:"type"`
	UDPHost    string      `json:"udpHost"`
	UDPPort    int         `json:"udpPort"`
	SessionKey string      `json:"sessionKey,omitempty"`
}

// UDPRegister registers a routing key for UDP audio delivery.
type UDPRegister struct {
	Type       MessageType `json:"type"`
	UserIDHash uint32      `json:"userIdHash"`
}

// UDPUnregister removes a routing-key registration.
type UDPUnregister struct {
	Type       MessageType `json:"type"`
	UserIDHash uint32      `json:"userIdHash"`
}

// Heartbeat is a ping, pong or udp_ping_ack: a message whose type is its
// entire content.
type Heartbeat struct {
	Type MessageType `json:"type"`
}
