// Package envelope encrypts values before they are persisted.
//
// A Cipher is either disabled, in which case Encrypt and Decrypt return their
// input unchanged, or enabled with a 256-bit key, in which case every call to
// Encrypt draws a fresh 24-byte nonce and returns nonce || XChaCha20-Poly1305
// output. Callers must not assume ciphertext is distinguishable from
// plaintext.
package envelope

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"hookrelay.io/internal/apierr"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
)

var (
	ErrEncryption = &apierr.Error{Kind: apierr.KindEncryption, Code: "encryption_failed"}
	ErrDecryption = &apierr.Error{Kind: apierr.KindEncryption, Code: "decryption_failed"}
)

// Mode selects the cipher variant.
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeEnabled
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Cipher is safe for concurrent use. The zero value is disabled.
type Cipher struct {
	mode Mode
	aead cipher.AEAD
}

// NewNoop returns a cipher that passes values through unchanged.
func NewNoop() Cipher {
	return Cipher{mode: ModeDisabled}
}

// New returns an enabled cipher keyed with key.
func New(key [KeySize]byte) Cipher {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		// NewX only fails on a wrong key length, which the array type rules out.
		panic(fmt.Sprintf("envelope: %v", err))
	}
	return Cipher{mode: ModeEnabled, aead: aead}
}

// FromBase64 decodes a standard base64 key. An empty string yields a disabled cipher.
func FromBase64(encoded string) (Cipher, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return NewNoop(), nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Cipher{}, fmt.Errorf("envelope: decode key: %w", err)
	}
	if len(raw) != KeySize {
		return Cipher{}, fmt.Errorf("envelope: key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return New(key), nil
}

func (c Cipher) Mode() Mode { return c.mode }

func (c Cipher) Enabled() bool { return c.mode == ModeEnabled }

// Encrypt seals plaintext under a fresh random nonce.
func (c Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	switch c.mode {
	case ModeDisabled:
		return clone(plaintext), nil
	case ModeEnabled:
		out := make([]byte, NonceSize, NonceSize+len(plaintext)+c.aead.Overhead())
		if _, err := rand.Read(out); err != nil {
			return nil, ErrEncryption
		}
		return c.aead.Seal(out, out[:NonceSize], plaintext, nil), nil
	default:
		return nil, ErrEncryption
	}
}

// Decrypt opens a value produced by Encrypt. Truncated, tampered and
// wrongly keyed inputs all fail with ErrDecryption.
func (c Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	switch c.mode {
	case ModeDisabled:
		return clone(ciphertext), nil
	case ModeEnabled:
		if len(ciphertext) < NonceSize {
			return nil, ErrDecryption
		}
		nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
		plain, err := c.aead.Open(nil, nonce, sealed, nil)
		if err != nil {
			return nil, ErrDecryption
		}
		return plain, nil
	default:
		return nil, ErrDecryption
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
