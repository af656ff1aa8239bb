package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestParsePrincipal_ValidToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := signedToken(t, jwt.MapClaims{
		"sub":         "user-42",
		"zoneinfo":    "zone-7",
		"custom:role": "coapplicant2",
		"email":       "ada@example.com",
		"exp":         now.Add(time.Hour).Unix(),
	})

	p, err := ParsePrincipal("Bearer "+raw, now)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.Equal(t, "zone-7", p.Zone)
	assert.Equal(t, domain.RoleCoApplicant, p.Role)
	assert.Equal(t, "coapplicant2", p.RawRole)
	assert.Equal(t, "ada@example.com", p.Email)
}

func TestParsePrincipal_WithinExpiryBufferIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := signedToken(t, jwt.MapClaims{
		"sub":      "user-42",
		"zoneinfo": "zone-7",
		"exp":      now.Add(3 * time.Minute).Unix(),
	})

	_, err := ParsePrincipal(raw, now)
	require.Error(t, err)
	assert.True(t, appErrors.IsAuthExpired(err))
}

func TestParsePrincipal_OutsideBufferIsFresh(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := signedToken(t, jwt.MapClaims{
		"sub":      "user-42",
		"zoneinfo": "zone-7",
		"exp":      now.Add(6 * time.Minute).Unix(),
	})

	_, err := ParsePrincipal(raw, now)
	assert.NoError(t, err)
}

func TestParsePrincipal_MissingSubject(t *testing.T) {
	now := time.Now()
	raw := signedToken(t, jwt.MapClaims{
		"zoneinfo": "zone-7",
		"exp":      now.Add(time.Hour).Unix(),
	})

	_, err := ParsePrincipal(raw, now)
	require.Error(t, err)
	assert.True(t, appErrors.IsMissingIdentity(err))
}

func TestParsePrincipal_MissingZone(t *testing.T) {
	now := time.Now()
	raw := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": now.Add(time.Hour).Unix(),
	})

	_, err := ParsePrincipal(raw, now)
	require.Error(t, err)
	assert.True(t, appErrors.IsMissingIdentity(err))
}

func TestParsePrincipal_EmptyToken(t *testing.T) {
	_, err := ParsePrincipal("", time.Now())
	require.Error(t, err)
	assert.True(t, appErrors.IsMissingIdentity(err))
}

func TestParsePrincipal_NoExpiryClaimIsAccepted(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{
		"sub":      "user-42",
		"zoneinfo": "zone-7",
	})

	p, err := ParsePrincipal(raw, time.Now())
	require.NoError(t, err)
	assert.True(t, p.TokenExpiry.IsZero())
}
