// Package crypto implements per-session authenticated encryption for the UDP
// audio path.
//
// Each session holds one 32-byte symmetric key, generated server-side and
// delivered to the client over the already-encrypted signaling channel. Audio
// chunks are sealed with NaCl secretbox (XSalsa20 + Poly1305); every sealed
// payload is laid out as
//
//	nonce (24 bytes) || ciphertext (plaintext length + 16-byte tag)
//
// giving a fixed 40-byte overhead per chunk. A fresh random nonce is drawn
// per call, so nonce reuse under a key cannot occur.
//
// Decryption failures are routine on a lossy, unauthenticated transport:
// Decrypt reports them as a boolean, and callers drop the packet and count it
// rather than treating it as an error.
package crypto
