package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
)

const (
	keySize   = 32
	nonceSize = 24

	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
)

// ErrOpenFailed is returned when a sealed value cannot be authenticated.
var ErrOpenFailed = errors.New("sealed value could not be opened")

// Sealer encrypts small secrets (retailer credentials, card data) for storage.
type Sealer struct {
	key  [keySize]byte
	rand io.Reader
}

// NewSealer builds a sealer from the configured key material.
func NewSealer(cfg config.SecurityConfig) (*Sealer, error) {
	material := strings.TrimSpace(cfg.CredentialsKey)
	if material == "" {
		return nil, errors.New("credentials key is required")
	}

	s := &Sealer{rand: rand.Reader}
	if raw, err := hex.DecodeString(material); err == nil && len(raw) == keySize {
		copy(s.key[:], raw)
		return s, nil
	}

	if strings.TrimSpace(cfg.CredentialsSalt) == "" {
		return nil, errors.New("credentials salt is required for passphrase keys")
	}
	derived := argon2.IDKey([]byte(material), []byte(cfg.CredentialsSalt), argonTime, argonMemory, argonThreads, keySize)
	copy(s.key[:], derived)
	return s, nil
}

// Seal encrypts plaintext and returns base64(nonce || box).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return nil, ErrOpenFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
