package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// testKDF keeps Argon2 cheap in tests.
func testKDF(t *testing.T) KDFParams {
	t.Helper()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	return KDFParams{Salt: salt, Memory: 1024, Iterations: 1, Parallelism: 1}
}

func TestDeriveKey(t *testing.T) {
	params := testKDF(t)
	password := []byte("test-password-123")

	key := DeriveKey(password, params)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	if !bytes.Equal(key, DeriveKey(password, params)) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	if bytes.Equal(key, DeriveKey([]byte("different-password"), params)) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	other := testKDF(t)
	if bytes.Equal(key, DeriveKey(password, other)) {
		t.Error("DeriveKey() with different salt should produce different key")
	}
}

func TestDefaultKDFParams(t *testing.T) {
	p := DefaultKDFParams()
	if p.Memory != 64*1024 || p.Iterations != 3 || p.Parallelism != 4 {
		t.Errorf("DefaultKDFParams() = %+v, want 64MB/3/4", p)
	}
	if p.Salt != nil {
		t.Error("DefaultKDFParams() must not carry a salt")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hunter2")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x00}},
		{"large", bytes.Repeat([]byte("x"), 1<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(key, tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(blob) != NonceLength+len(tt.plaintext)+16 {
				t.Errorf("Encrypt() blob length = %d, want %d", len(blob), NonceLength+len(tt.plaintext)+16)
			}

			got, err := Decrypt(key, blob)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Error("Decrypt() did not return the original plaintext")
			}
		})
	}
}

func TestEncryptUniqueNonce(t *testing.T) {
	key := make([]byte, KeyLength)
	a, err := Encrypt(key, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt(key, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:NonceLength], b[:NonceLength]) {
		t.Error("Encrypt() reused a nonce")
	}
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 48} {
		if _, err := Encrypt(make([]byte, n), []byte("x")); err != ErrInvalidKeyLength {
			t.Errorf("Encrypt() with %d-byte key error = %v, want %v", n, err, ErrInvalidKeyLength)
		}
		if _, err := Decrypt(make([]byte, n), make([]byte, 64)); err != ErrInvalidKeyLength {
			t.Errorf("Decrypt() with %d-byte key error = %v, want %v", n, err, ErrInvalidKeyLength)
		}
	}
}

func TestDecryptFailures(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	blob, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(key, blob[:NonceLength+4]); err != ErrCiphertextTooShort {
		t.Errorf("Decrypt() short blob error = %v, want %v", err, ErrCiphertextTooShort)
	}

	tampered := bytes.Clone(blob)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decrypt(key, tampered); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() tampered error = %v, want %v", err, ErrDecryptionFailed)
	}

	wrong := make([]byte, KeyLength)
	if _, err := Decrypt(wrong, blob); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() wrong key error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte("sensitive")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("SecureWipe() left byte %d = %#x", i, b)
		}
	}
	SecureWipe(nil)
}

func BenchmarkEncrypt1KB(b *testing.B) {
	key := make([]byte, KeyLength)
	data := make([]byte, 1024)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if _, err := Encrypt(key, data); err != nil {
			b.Fatal(err)
		}
	}
}
