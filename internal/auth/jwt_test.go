package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/models"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestJWTManager(t *testing.T) {
	m := NewJWTManager(secret, time.Hour)

	token, err := m.Generate(&models.Participant{ID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.ParticipantID())
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestJWTManagerRejects(t *testing.T) {
	m := NewJWTManager(secret, time.Hour)
	token, err := m.Generate(&models.Participant{ID: "alice"})
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewJWTManager(secret, time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject: "mallory",
			Issuer:  issuer,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Validate(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("no subject", func(t *testing.T) {
		_, err := m.Generate(&models.Participant{})
		assert.ErrorIs(t, err, models.ErrValidationFailed)
	})
}
