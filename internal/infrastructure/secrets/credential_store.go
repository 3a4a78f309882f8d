package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"github.com/synchub/backend/internal/domain/integration"
)

// scrypt parameters (interactive-grade, key derived once at startup)
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// CipherRepository persists ciphertext blobs keyed by reference
type CipherRepository interface {
	Save(ctx context.Context, ref uuid.UUID, ciphertext []byte) error
	Find(ctx context.Context, ref uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, ref uuid.UUID) error
}

// AESCredentialStore implements CredentialStore with AES-256-GCM. The data
// key is derived from the configured secret with scrypt; each blob carries
// its own random nonce.
type AESCredentialStore struct {
	aead cipher.AEAD
	repo CipherRepository
}

var _ integration.CredentialStore = (*AESCredentialStore)(nil)

// NewAESCredentialStore derives the data key and prepares the cipher
func NewAESCredentialStore(secret, salt string, repo CipherRepository) (*AESCredentialStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("secrets: encryption secret must not be empty")
	}

	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}

	return &AESCredentialStore{aead: aead, repo: repo}, nil
}

// Encrypt stores the credentials encrypted and returns an opaque reference
func (s *AESCredentialStore) Encrypt(ctx context.Context, plaintext integration.Credentials) (uuid.UUID, error) {
	data, err := json.Marshal(plaintext)
	if err != nil {
		return uuid.Nil, fmt.Errorf("secrets: marshal credentials: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return uuid.Nil, fmt.Errorf("secrets: generate nonce: %w", err)
	}

	// nonce is prepended to the sealed blob
	ciphertext := s.aead.Seal(nonce, nonce, data, nil)

	ref := uuid.New()
	if err := s.repo.Save(ctx, ref, ciphertext); err != nil {
		return uuid.Nil, fmt.Errorf("secrets: store ciphertext: %w", err)
	}
	return ref, nil
}

// Decrypt resolves a reference back to plaintext credentials
func (s *AESCredentialStore) Decrypt(ctx context.Context, ref uuid.UUID) (integration.Credentials, error) {
	blob, err := s.repo.Find(ctx, ref)
	if err != nil {
		return nil, err
	}

	nonceSize := s.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("secrets: ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	data, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt credentials: %w", err)
	}

	var creds integration.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("secrets: unmarshal credentials: %w", err)
	}
	return creds, nil
}

// Delete removes the stored ciphertext for a reference
func (s *AESCredentialStore) Delete(ctx context.Context, ref uuid.UUID) error {
	return s.repo.Delete(ctx, ref)
}
