package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTokenService(t *testing.T, accessTTL, refreshTTL time.Duration) *Service {
	t.Helper()
	svc, err := NewService("acceso-secreto", "refresco-secreto", accessTTL, refreshTTL, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("empty secrets rejected", func(t *testing.T) {
		_, err := NewService("", "r", 0, 0, nil)
		assert.Error(t, err)
	})

	t.Run("equal secrets rejected", func(t *testing.T) {
		_, err := NewService("mismo", "mismo", 0, 0, nil)
		assert.Error(t, err)
	})

	t.Run("lifetime defaults", func(t *testing.T) {
		svc := newTestTokenService(t, 0, 0)
		assert.Equal(t, 30*time.Minute, svc.AccessTTL())
		assert.Equal(t, 7*24*time.Hour, svc.RefreshTTL())
	})
}

func TestMintAndValidate(t *testing.T) {
	svc := newTestTokenService(t, 30*time.Minute, 24*time.Hour)

	access, refresh, accessExp, refreshExp, err := svc.MintPair(7, "analista")
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)
	assert.True(t, refreshExp.After(accessExp))

	t.Run("access claims round trip", func(t *testing.T) {
		claims, err := svc.Validate(access, KindAccess)
		require.NoError(t, err)
		assert.Equal(t, int64(7), claims.UserID)
		assert.Equal(t, "analista", claims.Subject)
		assert.Equal(t, KindAccess, claims.Kind)
	})

	t.Run("kind cross-use is rejected", func(t *testing.T) {
		_, err := svc.Validate(access, KindRefresh)
		assert.ErrorIs(t, err, ErrInvalid)
		_, err = svc.Validate(refresh, KindAccess)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("back-to-back mints never repeat", func(t *testing.T) {
		// Same user, same second: the jti must still make each pair unique
		// so a rotation always replaces the stored tokens.
		access2, refresh2, _, _, err := svc.MintPair(7, "analista")
		require.NoError(t, err)
		assert.NotEqual(t, access, access2)
		assert.NotEqual(t, refresh, refresh2)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.Validate("no-es-un-token", KindAccess)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("foreign signature is rejected", func(t *testing.T) {
		other := newTestTokenService(t, time.Minute, time.Hour)
		foreign, _, _, _, err := other.MintPair(7, "analista")
		require.NoError(t, err)
		// Different service, same kind, different secret.
		svc2, err := NewService("otra-clave", "otra-clave-refresco", time.Minute, time.Hour, nil)
		require.NoError(t, err)
		_, err = svc2.Validate(foreign, KindAccess)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestExpiredToken(t *testing.T) {
	svc := newTestTokenService(t, -time.Minute, 24*time.Hour)
	// Force the default lifetime off: mint directly with a past expiry.
	access, err := svc.mint(7, "analista", KindAccess, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = svc.Validate(access, KindAccess)
	assert.ErrorIs(t, err, ErrExpired)

	t.Run("decode still reads expired claims", func(t *testing.T) {
		claims, err := svc.Decode(access)
		require.NoError(t, err)
		assert.Equal(t, int64(7), claims.UserID)
	})
}
