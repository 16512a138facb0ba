package crypto

import (
	"crypto/subtle"
	"runtime"
)

// ZeroBytes erases the contents of a byte slice containing sensitive data.
func ZeroBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	// The ConstantTimeCompare touch makes it harder for the compiler to
	// prove the buffer is dead and elide the overwrite.
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, zeros)
	copy(data, zeros)

	runtime.KeepAlive(data)
	runtime.KeepAlive(zeros)
}

// WipeKey securely erases a session key. Call this on session teardown; the
// key must never outlive its session.
func WipeKey(key *Key) {
	if key == nil {
		return
	}
	ZeroBytes(key[:])
}
