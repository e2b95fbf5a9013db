package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidKey reports key material that could not be parsed.
var ErrInvalidKey = errors.New("auth: invalid key material")

// Keys holds the symmetric HS256 key used to sign and verify bearer tokens.
// The same secret always yields a key that verifies the same tokens.
type Keys struct {
	secret []byte
}

// NewKeys copies secret into a new signing key.
func NewKeys(secret []byte) Keys {
	return Keys{secret: append([]byte(nil), secret...)}
}

func (k Keys) empty() bool { return len(k.secret) == 0 }

func (k Keys) String() string { return "<Keys ***>" }

func (k Keys) GoString() string { return k.String() }

// AsymmetricKey is an ed25519 keypair used to sign artifacts outside the
// bearer-token system. Only the public half is ever displayed.
type AsymmetricKey struct {
	priv ed25519.PrivateKey
}

// GenerateAsymmetricKey creates a keypair from a random seed.
func GenerateAsymmetricKey() (AsymmetricKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return AsymmetricKey{}, fmt.Errorf("auth: generate key: %w", err)
	}
	return AsymmetricKey{priv: priv}, nil
}

// AsymmetricKeyFromSlice parses a 32-byte seed or a 64-byte seed||public keypair.
// A keypair whose public half does not match its seed is rejected.
func AsymmetricKeyFromSlice(raw []byte) (AsymmetricKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return AsymmetricKey{priv: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if subtle.ConstantTimeCompare(priv[ed25519.SeedSize:], raw[ed25519.SeedSize:]) != 1 {
			return AsymmetricKey{}, ErrInvalidKey
		}
		return AsymmetricKey{priv: priv}, nil
	default:
		return AsymmetricKey{}, ErrInvalidKey
	}
}

// AsymmetricKeyFromBase64 decodes standard base64 and parses the result.
func AsymmetricKeyFromBase64(encoded string) (AsymmetricKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return AsymmetricKey{}, ErrInvalidKey
	}
	return AsymmetricKeyFromSlice(raw)
}

// LoadAsymmetricKey parses a configured base64 key, or generates a fresh one
// when encoded is empty. A generated key does not survive a restart.
func LoadAsymmetricKey(encoded string) (AsymmetricKey, error) {
	if encoded == "" {
		return GenerateAsymmetricKey()
	}
	return AsymmetricKeyFromBase64(encoded)
}

// PublicKey returns a copy of the public half.
func (k AsymmetricKey) PublicKey() ed25519.PublicKey {
	if k.priv == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), k.priv.Public().(ed25519.PublicKey)...)
}

// Bytes returns the 64-byte seed||public encoding, suitable for AsymmetricKeyFromSlice.
func (k AsymmetricKey) Bytes() []byte {
	return append([]byte(nil), k.priv...)
}

// Sign signs msg with the private half.
func (k AsymmetricKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Verify checks sig against msg with the public half.
func (k AsymmetricKey) Verify(msg, sig []byte) bool {
	if k.priv == nil {
		return false
	}
	return ed25519.Verify(k.PublicKey(), msg, sig)
}

// Equal compares key bytes.
func (k AsymmetricKey) Equal(other AsymmetricKey) bool {
	return len(k.priv) == len(other.priv) && subtle.ConstantTimeCompare(k.priv, other.priv) == 1
}

func (k AsymmetricKey) String() string {
	return fmt.Sprintf("<AsymmetricKey sk=*** pk=%s>", base64.StdEncoding.EncodeToString(k.PublicKey()))
}

func (k AsymmetricKey) GoString() string { return k.String() }
