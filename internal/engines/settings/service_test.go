package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	recorder := audit.NewRecorder(st.Audit(), zap.NewNop())
	return NewService(st, recorder, zap.NewNop()), st
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	actor := int64(3)
	meta := audit.RequestMeta{ActorID: &actor, IP: "10.0.0.1"}

	t.Run("stores and audits", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, KeySessionRetentionDays, "14", meta))

		value, ok, err := st.SystemConfig().Get(ctx, KeySessionRetentionDays)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "14", value)

		events := st.AuditEvents()
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, models.AuditConfiguration, last.Kind)
		assert.Equal(t, "configuracion", last.Resource)
	})

	t.Run("records previous value on overwrite", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, KeySessionRetentionDays, "21", meta))
		value, _, err := st.SystemConfig().Get(ctx, KeySessionRetentionDays)
		require.NoError(t, err)
		assert.Equal(t, "21", value)
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		for _, key := range []string{"", "UPPER", "9starts_with_digit", "es pacio"} {
			err := svc.Set(ctx, key, "x", meta)
			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr), "key %q", key)
			assert.Equal(t, "VAL_001", appErr.Code)
		}
	})

	t.Run("rejects unsafe values", func(t *testing.T) {
		err := svc.Set(ctx, "motd", "<script>alert(1)</script>", meta)
		var appErr *apperrors.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "VAL_001", appErr.Code)
	})
}

func TestTypedGetters(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	require.NoError(t, st.SystemConfig().Set(ctx, "retention", "30", nil))
	require.NoError(t, st.SystemConfig().Set(ctx, "paused", "true", nil))
	require.NoError(t, st.SystemConfig().Set(ctx, "garbage", "treinta", nil))

	assert.Equal(t, 30, svc.Int(ctx, "retention", 7))
	assert.Equal(t, 7, svc.Int(ctx, "missing", 7))
	assert.Equal(t, 7, svc.Int(ctx, "garbage", 7))

	assert.True(t, svc.Bool(ctx, "paused", false))
	assert.False(t, svc.Bool(ctx, "missing", false))
	assert.False(t, svc.Bool(ctx, "garbage", false))

	assert.Equal(t, "30", svc.String(ctx, "retention", ""))
	assert.Equal(t, "defecto", svc.String(ctx, "missing", "defecto"))
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	require.NoError(t, st.SystemConfig().Set(ctx, "a", "1", nil))
	require.NoError(t, st.SystemConfig().Set(ctx, "b", "2", nil))

	values, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, values)
}
