package modifier

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Base64 is a reversible encoder over string values. It is an obfuscation
// layer, not a security boundary; use AEAD for secrets.
type Base64 struct{}

func (Base64) Encode(value any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

func (Base64) Decode(value any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 value: %w", err)
	}
	return string(decoded), nil
}

// AEAD is a reversible encoder that seals string values with
// ChaCha20-Poly1305. Stored form is base64(nonce || ciphertext).
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD builds an AEAD encoder from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build aead encoder: %w", err)
	}
	return &AEAD{aead: aead}, nil
}

func (a *AEAD) Encode(value any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := a.aead.Seal(nonce, nonce, []byte(s), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (a *AEAD) Decode(value any) (any, error) {
	s, err := asString(value)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	if len(sealed) < a.aead.NonceSize() {
		return nil, fmt.Errorf("decode sealed value: truncated payload")
	}
	nonce, ciphertext := sealed[:a.aead.NonceSize()], sealed[a.aead.NonceSize():]
	plain, err := a.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// Mask redacts a value to a fixed-width run of mask characters, hiding both
// content and length.
type Mask struct{}

func (Mask) Redact(any) any {
	return strings.Repeat("#", 10)
}

// LeftMask redacts all but the trailing Keep characters, the usual display
// form for card numbers and tokens.
type LeftMask struct {
	Keep int
}

func (m LeftMask) Redact(value any) any {
	s := fmt.Sprint(value)
	if m.Keep <= 0 || m.Keep >= len(s) {
		return strings.Repeat("#", len(s))
	}
	return strings.Repeat("#", len(s)-m.Keep) + s[len(s)-m.Keep:]
}

// SHA256 redacts a value to its hex digest: stable for correlation across
// records, irreversible for display.
type SHA256 struct{}

func (SHA256) Redact(value any) any {
	sum := sha256.Sum256([]byte(fmt.Sprint(value)))
	return hex.EncodeToString(sum[:])
}

func asString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("encoder requires a string value, got %T", value)
	}
}
