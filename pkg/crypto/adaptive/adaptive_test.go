package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

var key32 = func() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}()

func TestNew(t *testing.T) {
	c, err := New(key32)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != Preferred() {
		t.Errorf("New() type = %s, want %s", c.Type(), Preferred())
	}
}

func TestNewWithType_KeySizes(t *testing.T) {
	tests := []struct {
		name    string
		typ     CipherType
		keyLen  int
		wantErr bool
	}{
		{"aes-128", CipherAESGCM, 16, false},
		{"aes-192", CipherAESGCM, 24, false},
		{"aes-256", CipherAESGCM, 32, false},
		{"aes invalid", CipherAESGCM, 15, true},
		{"chacha", CipherChaCha20, 32, false},
		{"chacha short", CipherChaCha20, 16, true},
		{"unknown", CipherType("rot13"), 32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWithType(make([]byte, tt.keyLen), tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.Type() != tt.typ {
				t.Errorf("Type() = %s, want %s", c.Type(), tt.typ)
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, err := NewWithType(key32, typ)
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}

			for _, pt := range [][]byte{{}, []byte(`{"lastAccess":1}`), bytes.Repeat([]byte("A"), 4096)} {
				sealed, err := c.Encrypt(pt, []byte("s/key"))
				if err != nil {
					t.Fatalf("Encrypt() error = %v", err)
				}
				if len(sealed) != len(pt)+c.Overhead() {
					t.Errorf("sealed length = %d, want %d", len(sealed), len(pt)+c.Overhead())
				}

				got, err := c.Decrypt(sealed, []byte("s/key"))
				if err != nil {
					t.Fatalf("Decrypt() error = %v", err)
				}
				if !bytes.Equal(got, pt) {
					t.Error("Decrypt() did not return the plaintext")
				}

				if _, err := c.Decrypt(sealed, []byte("s/other")); err == nil {
					t.Error("Decrypt() with different additional data should fail")
				}
			}
		})
	}
}

func TestDecryptTampered(t *testing.T) {
	c, err := New(key32)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sealed, err := c.Encrypt([]byte("secret"), nil)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := c.Decrypt(sealed, nil); err == nil {
		t.Error("Decrypt() should fail for tampered ciphertext")
	}
	if _, err := c.Decrypt(make([]byte, c.NonceSize()-1), nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Decrypt(short) error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, err := New(key32)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a, _ := c.Encrypt([]byte("same"), nil)
	b, _ := c.Encrypt([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("passphrase"), []byte("sessiondb/badger"))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	k2, _ := DeriveKey([]byte("passphrase"), []byte("sessiondb/badger"))
	k3, _ := DeriveKey([]byte("passphrase"), []byte("other"))

	if len(k1) != KeySize {
		t.Errorf("key length = %d, want %d", len(k1), KeySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() should be deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different info should derive different keys")
	}
	if _, err := DeriveKey(nil, nil); err == nil {
		t.Error("DeriveKey() with empty secret should fail")
	}
}
