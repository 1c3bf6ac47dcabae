// Package crypto implements password-based file encryption for safeword.
//
// Credentials in a vault are stored in plaintext; this package is the
// separate utility behind the encrypt, decrypt, backup and restore commands.
// A password is stretched with Argon2id, split with HKDF-SHA256 into an
// encryption key and a MAC key, and the data is sealed with AES-256-GCM
// inside an envelope whose header and ciphertext are covered by
// HMAC-SHA256.
//
//	var buf bytes.Buffer
//	err := crypto.Seal(&buf, password, plaintext, &crypto.Header{Kind: crypto.KindFile})
//
//	header, plaintext, err := crypto.Open(&buf, password)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of generated KDF salts in bytes.
	SaltLength = 32
)

// KDFParams are the Argon2id parameters recorded in every envelope header,
// so files sealed with older defaults stay readable.
type KDFParams struct {
	Salt        []byte `json:"salt"`
	Memory      uint32 `json:"memory"`      // KiB
	Iterations  uint32 `json:"iterations"`  // time cost
	Parallelism uint8  `json:"parallelism"` // threads
}

// DefaultKDFParams returns the OWASP-recommended Argon2id cost
// (64 MB, 3 iterations, 4 threads) without a salt.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) validate() error {
	if len(p.Salt) < 16 {
		return fmt.Errorf("%w: salt shorter than 16 bytes", ErrInvalidHeader)
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return fmt.Errorf("%w: zero KDF cost", ErrInvalidHeader)
	}
	// Refuse headers that would make Argon2 allocate more than 4 GiB.
	if p.Memory > 4*1024*1024 {
		return fmt.Errorf("%w: KDF memory %d KiB too large", ErrInvalidHeader, p.Memory)
	}
	return nil
}

// Sentinel errors returned by crypto functions.
var (
	ErrInvalidKeyLength   = errors.New("crypto: invalid key length, must be 32 bytes")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed, authentication tag verification failed")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrEmptyPassword      = errors.New("crypto: password cannot be empty")
)

// DeriveKey stretches password into a 256-bit key with Argon2id.
func DeriveKey(password []byte, p KDFParams) []byte {
	return argon2.IDKey(password, p.Salt, p.Iterations, p.Memory, p.Parallelism, KeyLength)
}

// GenerateSalt returns SaltLength bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns nonce || ciphertext || tag.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength, NonceLength+len(plaintext)+gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Any tampering yields ErrDecryptionFailed.
func Decrypt(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceLength+gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, blob[:NonceLength], blob[NonceLength:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites b with zeros.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// Keep b alive so the stores above are not eliminated.
	runtime.KeepAlive(b)
}
