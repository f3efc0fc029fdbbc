package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"archie-core-shopify-app/internal/ports"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const minKeyLength = 16

var (
	hkdfSalt = []byte("shopify-app-tokens")
	hkdfInfo = []byte("access-token-v1")

	// ErrKeyTooShort is returned for master keys under 16 bytes
	ErrKeyTooShort = errors.New("encryption key must be at least 16 bytes")
	// ErrInvalidCiphertext is returned when a value was not produced by Encrypt
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Service encrypts secrets at rest with XChaCha20-Poly1305 under a key derived from the master key
type Service struct {
	aead cipher.AEAD
}

// NewService derives the data key from masterKey and creates the service
func NewService(masterKey string) (ports.EncryptionService, error) {
	if len(masterKey) < minKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, []byte(masterKey), hkdfSalt, hkdfInfo)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Service{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext)
func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (s *Service) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return string(plaintext), nil
}
