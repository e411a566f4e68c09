package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedSession(t *testing.T, st *memory.Store, id string, userID int64, valid bool, accessExp, refreshExp time.Time) {
	t.Helper()
	sess := &models.Session{
		ID:               id,
		UserID:           userID,
		AccessToken:      "access-" + id,
		RefreshToken:     "refresh-" + id,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Valid:            true,
	}
	require.NoError(t, st.Sessions().Create(context.Background(), sess, 100))
	if !valid {
		require.NoError(t, st.Sessions().Invalidate(context.Background(), id, models.InvalidationLogout))
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cfg := &config.Config{SessionRetentionDays: 30}
	sw := NewSweeper(st, cfg, zap.NewNop())

	user := &models.User{Username: "analyst", AuthKind: models.AuthKindLocal, Active: true}
	require.NoError(t, st.Users().Create(ctx, user))

	now := time.Now()
	// Live session.
	seedSession(t, st, "live", user.ID, true, now.Add(30*time.Minute), now.Add(7*24*time.Hour))
	// Past access expiry, still inside retention.
	seedSession(t, st, "stale", user.ID, true, now.Add(-time.Hour), now.Add(time.Hour))
	// Invalid and past the retention horizon.
	seedSession(t, st, "ancient", user.ID, false, now.Add(-90*24*time.Hour), now.Add(-60*24*time.Hour))

	// Expired reset token.
	expired := now.Add(-time.Hour)
	token := "tok-viejo"
	user.ResetToken = &token
	user.ResetTokenExpires = &expired
	require.NoError(t, st.Users().Update(ctx, user))

	report, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.SessionsExpired)
	assert.Equal(t, int64(1), report.SessionsDeleted)
	assert.Equal(t, int64(1), report.TokensCleared)

	// The stale session was invalidated with the auto_expired reason.
	stale, err := st.Sessions().ByAccessToken(ctx, "access-stale")
	require.NoError(t, err)
	assert.False(t, stale.Valid)
	require.NotNil(t, stale.InvalidationReason)
	assert.Equal(t, models.InvalidationAutoExpired, *stale.InvalidationReason)

	// The ancient session is gone; the live one is untouched.
	_, err = st.Sessions().ByAccessToken(ctx, "access-ancient")
	require.Error(t, err)
	live, err := st.Sessions().ByAccessToken(ctx, "access-live")
	require.NoError(t, err)
	assert.True(t, live.Valid)

	// Token cleared.
	stored, err := st.Users().ByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetToken)

	t.Run("a second sweep is a no-op", func(t *testing.T) {
		report, err := sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.SessionsExpired)
		assert.Zero(t, report.SessionsDeleted)
		assert.Zero(t, report.TokensCleared)
	})
}

func TestRuntimeOverrides(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cfg := &config.Config{SessionRetentionDays: 30}
	sw := NewSweeper(st, cfg, zap.NewNop())
	sw.UseSettings(settings.NewService(st, audit.NewRecorder(st.Audit(), zap.NewNop()), zap.NewNop()))

	user := &models.User{Username: "operadora", AuthKind: models.AuthKindLocal, Active: true}
	require.NoError(t, st.Users().Create(ctx, user))

	now := time.Now()
	// Invalid 10 days ago: outside a 7-day retention, inside the 30-day default.
	seedSession(t, st, "reciente", user.ID, false, now.Add(-11*24*time.Hour), now.Add(-10*24*time.Hour))

	t.Run("stored retention overrides the environment default", func(t *testing.T) {
		report, err := sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.SessionsDeleted)

		require.NoError(t, st.SystemConfig().Set(ctx, settings.KeySessionRetentionDays, "7", nil))
		report, err = sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.SessionsDeleted)
	})

	t.Run("maintenance_paused skips the sweep", func(t *testing.T) {
		seedSession(t, st, "caduca", user.ID, true, now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, st.SystemConfig().Set(ctx, settings.KeyMaintenancePaused, "true", nil))

		report, err := sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.SessionsExpired)

		require.NoError(t, st.SystemConfig().Set(ctx, settings.KeyMaintenancePaused, "false", nil))
		report, err = sw.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.SessionsExpired)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	st := memory.New()
	cfg := &config.Config{SessionRetentionDays: 30}
	sw := NewSweeper(st, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("maintenance loop did not stop")
	}
}
