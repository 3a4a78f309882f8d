package integration

import (
	"context"

	"github.com/google/uuid"
)

// CredentialStore encrypts and stores provider credentials. The engine only
// ever holds the opaque reference; plaintext exists for the duration of a
// single call stack.
type CredentialStore interface {
	// Encrypt stores the credentials encrypted and returns an opaque reference
	Encrypt(ctx context.Context, plaintext Credentials) (uuid.UUID, error)

	// Decrypt resolves a reference back to plaintext credentials
	Decrypt(ctx context.Context, ref uuid.UUID) (Credentials, error)

	// Delete removes the stored ciphertext for a reference
	Delete(ctx context.Context, ref uuid.UUID) error
}
