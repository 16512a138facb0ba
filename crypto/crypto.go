package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the size of a session's symmetric key in bytes.
const KeySize = 32

// NonceSize is the size of the random nonce prepended to every encrypted
// payload.
const NonceSize = 24

// TagSize is the Poly1305 authentication tag appended by secretbox.
const TagSize = secretbox.Overhead

// Overhead is the fixed per-payload cost of encryption: a fresh nonce plus
// the authentication tag. Callers must subtract this from their plaintext
// chunk budget before encrypting for the wire.
const Overhead = NonceSize + TagSize

// Key is a per-session symmetric key. It is generated server-side at session
// start, delivered once over the already-secured signaling channel, and never
// transmitted over UDP.
type Key [KeySize]byte

// GenerateKey creates a new session key from the system CSPRNG.
func GenerateKey() (Key, error) {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return Key{}, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// KeyFromBytes copies a 32-byte slice into a Key, as received from the
// signaling channel.
func KeyFromBytes(b []byte) (Key, error) {
	var key Key
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("session key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Encrypt seals a payload with XSalsa20-Poly1305 and returns
// nonce || ciphertext. A fresh random nonce is generated per call; nonces are
// never reused under the same key.
func Encrypt(plaintext []byte, key Key) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends to the nonce slice so the output is nonce || box in one
	// allocation.
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, (*[KeySize]byte)(&key)), nil
}

// Decrypt opens a nonce || ciphertext payload produced by Encrypt. It returns
// (nil, false) on truncated input or authentication failure; a false result
// means "drop the packet", never a fatal condition, so no error detail is
// exposed.
func Decrypt(data []byte, key Key) ([]byte, bool) {
	if len(data) < Overhead {
		return nil, false
	}

	var nonce [NonceSize]byte
	copy(nonce[:], data[:NonceSize])

	return secretbox.Open(nil, data[NonceSize:], &nonce, (*[KeySize]byte)(&key))
}
