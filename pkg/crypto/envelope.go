package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Magic is the first eight bytes of every envelope.
var Magic = [8]byte{'S', 'W', 'R', 'D', '_', 'E', 'N', 'C'}

// FormatVersion is the envelope version written by Seal.
const FormatVersion = 1

const (
	macLength      = sha256.Size
	maxHeaderBytes = 1024 * 1024

	hkdfInfoEncryption = "safeword-envelope-encryption"
	hkdfInfoMAC        = "safeword-envelope-mac"
)

// Kind says what an envelope carries.
type Kind string

const (
	KindFile        Kind = "file"
	KindVaultBackup Kind = "vault-backup"
)

// Header is the cleartext part of an envelope. It is authenticated but not
// encrypted, so it can be inspected without the password.
type Header struct {
	Version   int               `json:"version"`
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
	Name      string            `json:"name,omitempty"` // original file name
	Size      int64             `json:"size"`           // plaintext bytes
	KDF       KDFParams         `json:"kdf"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Envelope errors
var (
	ErrInvalidMagic       = errors.New("crypto: not an encrypted safeword file")
	ErrUnsupportedVersion = errors.New("crypto: unsupported envelope version")
	ErrInvalidHeader      = errors.New("crypto: invalid envelope header")
	ErrIntegrityFailed    = errors.New("crypto: integrity check failed: wrong password or corrupted file")
)

// Seal encrypts plaintext under password and writes the envelope to w.
//
// Layout: magic(8) | header length(4, big-endian) | header JSON |
// nonce || ciphertext || tag | HMAC-SHA256(header JSON || sealed payload).
//
// h supplies Kind, Name and Meta. Version, ID, CreatedAt and Size are filled
// in; a zero KDF cost is replaced by DefaultKDFParams and a fresh salt is
// always generated. h is updated in place with the values written.
func Seal(w io.Writer, password, plaintext []byte, h *Header) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if h.Kind == "" {
		h.Kind = KindFile
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	kdf := h.KDF
	if kdf.Memory == 0 || kdf.Iterations == 0 || kdf.Parallelism == 0 {
		kdf = DefaultKDFParams()
	}
	kdf.Salt = salt

	h.Version = FormatVersion
	h.ID = uuid.NewString()
	h.CreatedAt = time.Now().UTC().Truncate(time.Second)
	h.Size = int64(len(plaintext))
	h.KDF = kdf

	headerJSON, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("crypto: failed to marshal header: %w", err)
	}

	encKey, macKey, err := deriveKeys(password, kdf)
	if err != nil {
		return err
	}
	defer SecureWipe(encKey)
	defer SecureWipe(macKey)

	payload, err := Encrypt(encKey, plaintext)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(Magic) + 4 + len(headerJSON) + len(payload) + macLength)
	buf.Write(Magic[:])
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("crypto: failed to write header length: %w", err)
	}
	buf.Write(headerJSON)
	buf.Write(payload)
	buf.Write(computeMAC(macKey, headerJSON, payload))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("crypto: failed to write envelope: %w", err)
	}
	return nil
}

// Open reads an envelope from r, verifies it and returns its header and
// plaintext. A wrong password and a modified file are indistinguishable
// and both yield ErrIntegrityFailed.
func Open(r io.Reader, password []byte) (*Header, []byte, error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	header, headerJSON, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to read payload: %w", err)
	}
	if len(rest) < macLength+NonceLength {
		return nil, nil, ErrCiphertextTooShort
	}
	payload, mac := rest[:len(rest)-macLength], rest[len(rest)-macLength:]

	encKey, macKey, err := deriveKeys(password, header.KDF)
	if err != nil {
		return nil, nil, err
	}
	defer SecureWipe(encKey)
	defer SecureWipe(macKey)

	if !hmac.Equal(computeMAC(macKey, headerJSON, payload), mac) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := Decrypt(encKey, payload)
	if err != nil {
		return nil, nil, ErrIntegrityFailed
	}
	return header, plaintext, nil
}

// ReadHeader reads and validates only the envelope header.
func ReadHeader(r io.Reader) (*Header, error) {
	header, _, err := readHeader(r)
	return header, err
}

func readHeader(r io.Reader) (*Header, []byte, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidMagic, err)
	}
	if magic != Magic {
		return nil, nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read length: %w", ErrInvalidHeader, err)
	}
	if headerLen == 0 || headerLen > maxHeaderBytes {
		return nil, nil, fmt.Errorf("%w: length %d", ErrInvalidHeader, headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if header.Version < 1 || header.Version > FormatVersion {
		return nil, nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	if err := header.KDF.validate(); err != nil {
		return nil, nil, err
	}
	return &header, headerJSON, nil
}

// deriveKeys stretches the password once and expands the result into
// independent encryption and MAC keys.
func deriveKeys(password []byte, kdf KDFParams) (encKey, macKey []byte, err error) {
	master := DeriveKey(password, kdf)
	defer SecureWipe(master)

	encKey, err = expand(master, hkdfInfoEncryption)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to derive encryption key: %w", err)
	}
	macKey, err = expand(master, hkdfInfoMAC)
	if err != nil {
		SecureWipe(encKey)
		return nil, nil, fmt.Errorf("crypto: failed to derive MAC key: %w", err)
	}
	return encKey, macKey, nil
}

func expand(secret []byte, info string) ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func computeMAC(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
