package signaling

// Channel is the client's view of the signaling connection, as consumed by
// the connectivity prober. The Monitor implements it; tests substitute
// stubs.
type Channel interface {
	// Connected reports whether the channel is currently usable.
	Connected() bool
	// Send marshals and delivers one control message. Delivery is ordered
	// and reliable while the channel is connected.
	Send(v any) error
}
