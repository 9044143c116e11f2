package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KeyPairFromSeed derives an Ed25519 keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// GenerateKeyPair returns a fresh ephemeral keypair for development use.
func GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// LoadEd25519PrivateKey reads a private key file holding either a 64-byte
// private key or a 32-byte seed, raw or as hex/base64 (optionally prefixed
// with "hex:" or "base64:").
func LoadEd25519PrivateKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := decodeKeyBytes(raw)
	if err != nil {
		return nil, nil, err
	}

	switch len(data) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(data)
		return priv, priv.Public().(ed25519.PublicKey), nil
	case ed25519.SeedSize:
		return KeyPairFromSeed(data)
	default:
		return nil, nil, fmt.Errorf("unsupported private key length: %d", len(data))
	}
}

// ParsePublicKey decodes a hex or base64 Ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	data, err := decodeKeyBytes([]byte(s))
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unsupported public key length: %d", len(data))
	}
	return ed25519.PublicKey(data), nil
}

func decodeKeyBytes(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty key material")
	}
	if rest, ok := strings.CutPrefix(trimmed, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(trimmed, "hex:"); ok {
		return hex.DecodeString(rest)
	}
	if out, err := hex.DecodeString(trimmed); err == nil {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return out, nil
	}
	// binary key files
	switch len(raw) {
	case ed25519.PrivateKeySize, ed25519.SeedSize:
		return raw, nil
	}
	if out, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return out, nil
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}
