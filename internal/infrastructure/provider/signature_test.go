package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synchub/backend/internal/domain/integration"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt-1"}`)
	secret := "whsec_test"

	t.Run("accepts a valid signature", func(t *testing.T) {
		headers := map[string]string{
			SignatureHeader: SignPayload(payload, secret),
		}
		assert.NoError(t, VerifySignature(payload, headers, secret))
	})

	t.Run("header lookup is case insensitive", func(t *testing.T) {
		headers := map[string]string{
			"x-webhook-signature": SignPayload(payload, secret),
		}
		assert.NoError(t, VerifySignature(payload, headers, secret))
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		headers := map[string]string{
			SignatureHeader: SignPayload(payload, secret),
		}
		err := VerifySignature([]byte(`{"event_id":"evt-2"}`), headers, secret)
		assert.ErrorIs(t, err, integration.ErrInvalidSignature)
	})

	t.Run("rejects the wrong secret", func(t *testing.T) {
		headers := map[string]string{
			SignatureHeader: SignPayload(payload, "other-secret"),
		}
		err := VerifySignature(payload, headers, secret)
		assert.ErrorIs(t, err, integration.ErrInvalidSignature)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		err := VerifySignature(payload, map[string]string{}, secret)
		assert.ErrorIs(t, err, integration.ErrInvalidSignature)
	})
}
