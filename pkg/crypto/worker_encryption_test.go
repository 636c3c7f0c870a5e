package crypto

import (
	"errors"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  string
		in   string
	}{
		{"short key", "secret", "ya29.access-token"},
		{"32 byte key", "0123456789abcdef0123456789abcdef", "1//refresh-token"},
		{"unicode", "secret", "토큰-値"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor([]byte(tt.key))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sealed, err := enc.Encrypt(tt.in)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			if sealed == tt.in {
				t.Fatal("expected ciphertext to differ from plaintext")
			}
			if !IsEncrypted(sealed) {
				t.Errorf("expected %q to look encrypted", sealed)
			}

			got, err := enc.Decrypt(sealed)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if got != tt.in {
				t.Errorf("expected %q, got %q", tt.in, got)
			}
		})
	}
}

func TestEncryptor_Errors(t *testing.T) {
	if _, err := NewEncryptor(nil); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}

	a, _ := NewEncryptor([]byte("key-a"))
	b, _ := NewEncryptor([]byte("key-b"))

	sealed, err := a.Encrypt("token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := a.Decrypt(Prefix + "c2hvcnQ="); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
	if _, err := a.Decrypt("c2hvcnQ="); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext for unprefixed value, got %v", err)
	}
	if got, _ := a.Decrypt(""); got != "" {
		t.Errorf("expected empty plaintext, got %q", got)
	}
	if IsEncrypted("plain-token") {
		t.Error("expected plain token not to look encrypted")
	}
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"plain-token", false},
		// long legacy tokens can be valid base64 and must still read as plaintext
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWZnaGlqa2xtbm9w", false},
		{"1//0gAbCdEfGhIjKlMnOpQrStUvWxYz", false},
		{Prefix + "QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNk", true},
	}
	for _, tt := range tests {
		if got := IsEncrypted(tt.in); got != tt.want {
			t.Errorf("IsEncrypted(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
