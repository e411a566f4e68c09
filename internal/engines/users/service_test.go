package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const strongPassword = "Correct#Horse9Battery"

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	cfg := &config.Config{MaxUsersLimit: 3, EnforceUserLimit: true}
	recorder := audit.NewRecorder(st.Audit(), zap.NewNop())
	return NewService(st, recorder, cfg, zap.NewNop()), st
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *apperrors.Error, got %v", err)
	return appErr.Code
}

func create(t *testing.T, svc *Service, username string, superuser bool) *models.User {
	t.Helper()
	user, err := svc.Create(context.Background(), CreateInput{
		Username:  username,
		Email:     username + "@sds.example",
		FullName:  "Test User",
		Password:  strongPassword,
		Superuser: superuser,
	}, false, audit.RequestMeta{})
	require.NoError(t, err)
	return user
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	meta := audit.RequestMeta{IP: "10.0.0.1"}

	t.Run("creates a local account", func(t *testing.T) {
		svc, _ := newTestService(t)
		user := create(t, svc, "analyst", false)
		assert.True(t, user.Active)
		assert.False(t, user.Superuser)
		assert.Equal(t, models.AuthKindLocal, user.AuthKind)
		assert.NotNil(t, user.PasswordHash)
	})

	t.Run("bootstrap account is always a superuser", func(t *testing.T) {
		svc, _ := newTestService(t)
		user, err := svc.Create(ctx, CreateInput{
			Username: "primera", Password: strongPassword,
		}, true, meta)
		require.NoError(t, err)
		assert.True(t, user.Superuser)
	})

	t.Run("rejects duplicate usernames", func(t *testing.T) {
		svc, _ := newTestService(t)
		create(t, svc, "analyst", false)
		_, err := svc.Create(ctx, CreateInput{
			Username: "Analyst", Password: strongPassword,
		}, false, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeConflict, appCode(t, err))
	})

	t.Run("rejects reserved usernames", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateInput{
			Username: "admin", Password: strongPassword,
		}, false, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})

	t.Run("bootstrap may take a reserved name", func(t *testing.T) {
		svc, _ := newTestService(t)
		user, err := svc.Create(ctx, CreateInput{
			Username: "admin", Email: "admin@sds.example",
			FullName: "Administrador", Password: "Admin123456!",
		}, true, meta)
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
		assert.True(t, user.Superuser)
	})

	t.Run("rejects malformed usernames and emails", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateInput{Username: "ab", Password: strongPassword}, false, meta)
		require.Error(t, err)

		_, err = svc.Create(ctx, CreateInput{
			Username: "analyst", Email: "not-an-email", Password: strongPassword,
		}, false, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})

	t.Run("rejects weak passwords", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateInput{Username: "analyst", Password: "corta"}, false, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})

	t.Run("enforces the user cap", func(t *testing.T) {
		svc, _ := newTestService(t)
		for _, name := range []string{"uno.uno", "dos.dos", "tres.tres"} {
			create(t, svc, name, false)
		}
		_, err := svc.Create(ctx, CreateInput{
			Username: "cuatro.cuatro", Password: strongPassword,
		}, false, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	meta := audit.RequestMeta{IP: "10.0.0.1"}

	t.Run("applies a patch", func(t *testing.T) {
		svc, _ := newTestService(t)
		user := create(t, svc, "analyst", false)

		name := "Nombre Nuevo"
		updated, err := svc.Update(ctx, user.ID, UpdateInput{FullName: &name}, meta)
		require.NoError(t, err)
		assert.Equal(t, name, updated.FullName)
	})

	t.Run("refuses to strip the last active superuser", func(t *testing.T) {
		svc, _ := newTestService(t)
		root := create(t, svc, "rootuser", true)

		no := false
		_, err := svc.Update(ctx, root.ID, UpdateInput{Superuser: &no}, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))

		_, err = svc.Update(ctx, root.ID, UpdateInput{Active: &no}, meta)
		require.Error(t, err)
	})

	t.Run("allows stripping when another superuser remains", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := create(t, svc, "rootuser", true)
		create(t, svc, "backup.root", true)

		no := false
		updated, err := svc.Update(ctx, first.ID, UpdateInput{Superuser: &no}, meta)
		require.NoError(t, err)
		assert.False(t, updated.Superuser)
	})

	t.Run("deactivation kills sessions", func(t *testing.T) {
		svc, st := newTestService(t)
		user := create(t, svc, "analyst", false)
		sess := &models.Session{ID: "s1", UserID: user.ID,
			AccessToken: "a1", RefreshToken: "r1", Valid: true,
			AccessExpiresAt:  time.Now().Add(30 * time.Minute),
			RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour)}
		require.NoError(t, st.Sessions().Create(ctx, sess, 10))

		n, err := st.Sessions().CountActive(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		no := false
		_, err = svc.Update(ctx, user.ID, UpdateInput{Active: &no}, meta)
		require.NoError(t, err)

		n, err = st.Sessions().CountActive(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	meta := audit.RequestMeta{IP: "10.0.0.1"}

	t.Run("removes the account", func(t *testing.T) {
		svc, _ := newTestService(t)
		user := create(t, svc, "analyst", false)
		require.NoError(t, svc.Delete(ctx, user.ID, meta))

		_, err := svc.Get(ctx, user.ID)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, appCode(t, err))
	})

	t.Run("refuses to delete the last active superuser", func(t *testing.T) {
		svc, _ := newTestService(t)
		root := create(t, svc, "rootuser", true)

		err := svc.Delete(ctx, root.ID, meta)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeValidation, appCode(t, err))
	})

	t.Run("audit rows survive actor deletion", func(t *testing.T) {
		svc, st := newTestService(t)
		root := create(t, svc, "rootuser", true)
		user := create(t, svc, "analyst", false)

		actorMeta := audit.RequestMeta{ActorID: &user.ID, IP: "10.0.0.1"}
		svcRecorder := audit.NewRecorder(st.Audit(), zap.NewNop())
		svcRecorder.Success(ctx, actorMeta, models.AuditDataAccess, "usuarios", "consulta", nil)

		require.NoError(t, svc.Delete(ctx, user.ID, audit.RequestMeta{ActorID: &root.ID}))

		events := st.AuditEvents()
		assert.NotEmpty(t, events)
	})
}
