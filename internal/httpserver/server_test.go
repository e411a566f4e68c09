package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/auth"
	"github.com/sds-platform/sds-core/internal/engines/rbac"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/engines/signals"
	"github.com/sds-platform/sds-core/internal/engines/users"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/providers"
	"github.com/sds-platform/sds-core/internal/store/memory"
	"github.com/sds-platform/sds-core/internal/token"
	"github.com/sds-platform/sds-core/pkg/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "Correct#Horse9Battery"

type testEnv struct {
	server *Server
	store  *memory.Store
	rbac   *rbac.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Environment:                   "development",
		ListenAddress:                 ":0",
		AccessTokenExpireMinutes:      30,
		RefreshTokenExpireDays:        7,
		PasswordHistoryCount:          5,
		EnforcePasswordHistory:        true,
		PasswordResetTokenExpireHours: 1,
		MaxLoginAttempts:              5,
		AccountLockoutMinutes:         30,
		MaxActiveSessionsPerUser:      5,
		SessionRetentionDays:          30,
		MaxUsersLimit:                 100,
		EnforceUserLimit:              true,
		RateLimitPerMinute:            0, // disabled for handler tests
		ResetRequestsPerHour:          3,
		SecurityHeaders:               true,
	}

	st := memory.New()
	logger := zap.NewNop()
	tokens, err := token.NewService("access-secret-for-tests", "refresh-secret-for-tests",
		30*time.Minute, 7*24*time.Hour, logger)
	require.NoError(t, err)

	recorder := audit.NewRecorder(st.Audit(), logger)
	factory := providers.FactoryOf(providers.NewLocal())

	authSvc := auth.NewService(st, tokens, factory, recorder, nil, cfg, logger)
	usersSvc := users.NewService(st, recorder, cfg, logger)
	rbacSvc := rbac.NewService(st, recorder, logger)
	signalsSvc := signals.NewService(st, recorder, nil, logger)
	settingsSvc := settings.NewService(st, recorder, logger)
	require.NoError(t, rbacSvc.Seed(context.Background()))

	health := healthcheck.NewEngine(logger, 0)
	health.Register(healthcheck.Named("store", func(ctx context.Context) *healthcheck.Result {
		return &healthcheck.Result{
			ComponentName: "store",
			Status:        healthcheck.StatusHealthy,
			Timestamp:     time.Now(),
		}
	}))

	server := NewServer(cfg, Engines{
		Auth: authSvc, Users: usersSvc, RBAC: rbacSvc, Signals: signalsSvc, Settings: settingsSvc,
	}, recorder, health, logger)

	return &testEnv{server: server, store: st, rbac: rbacSvc}
}

func (e *testEnv) do(t *testing.T, method, path, tokenStr string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tokenStr != "" {
		req.Header.Set("Authorization", "Bearer "+tokenStr)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// bootstrapAdmin creates the first user anonymously and logs in.
func (e *testEnv) bootstrapAdmin(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users", "", ginH{
		"username": "fundadora", "password": testPassword, "email": "fundadora@sds.example",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/auth/login", "", ginH{
		"username": "fundadora", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := decode[models.TokenPair](t, w)
	return pair.AccessToken
}

type ginH = map[string]any

func TestFirstUserBootstrap(t *testing.T) {
	env := newTestEnv(t)

	t.Run("anonymous creation works only while no users exist", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/users", "", ginH{
			"username": "admin", "email": "admin@sds.example",
			"nombre_completo": "Administrador", "password": "Admin123456!",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		user := decode[models.User](t, w)
		assert.True(t, user.Superuser)

		w = env.do(t, http.MethodPost, "/auth/login", "", ginH{
			"username": "admin", "password": "Admin123456!",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		pair := decode[models.TokenPair](t, w)
		assert.NotEmpty(t, pair.AccessToken)

		w = env.do(t, http.MethodPost, "/users", "", ginH{
			"username": "segunda", "password": testPassword,
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "AUTH_001", body["error"])
	})

	t.Run("reserved names stay blocked after bootstrap", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/login", "", ginH{
			"username": "admin", "password": "Admin123456!",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		pair := decode[models.TokenPair](t, w)

		w = env.do(t, http.MethodPost, "/users", pair.AccessToken, ginH{
			"username": "root", "password": testPassword,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	})
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	tokenStr := env.bootstrapAdmin(t)

	t.Run("me returns the identity with wildcard permissions", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/auth/me", tokenStr, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[models.CurrentUser](t, w)
		assert.Equal(t, "fundadora", me.Username)
		assert.Equal(t, []string{"*"}, me.Permissions)
	})

	t.Run("validate reports a valid token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/validate", tokenStr, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[models.TokenValidationResponse](t, w)
		assert.True(t, resp.Valid)
		require.NotNil(t, resp.User)
	})

	t.Run("bad credentials return the stable code", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/login", "", ginH{
			"username": "fundadora", "password": "incorrecta",
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "AUTH_002", body["error"])
	})

	t.Run("missing bearer token is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh rotates and logout invalidates", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/auth/login", "", ginH{
			"username": "fundadora", "password": testPassword,
		})
		require.Equal(t, http.StatusOK, w.Code)
		pair := decode[models.TokenPair](t, w)

		w = env.do(t, http.MethodPost, "/auth/refresh", "", ginH{"refresh_token": pair.RefreshToken})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		rotated := decode[models.TokenPair](t, w)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

		w = env.do(t, http.MethodPost, "/auth/logout", rotated.AccessToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/auth/me", rotated.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPermissionGate(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.bootstrapAdmin(t)
	ctx := context.Background()

	// A second user with only the Auditor role.
	w := env.do(t, http.MethodPost, "/users", adminToken, ginH{
		"username": "auditora", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.User](t, w)

	auditor, err := env.store.Roles().ByName(ctx, "Auditor")
	require.NoError(t, err)
	w = env.do(t, http.MethodPut, fmt.Sprintf("/users/%d/roles", created.ID), adminToken,
		ginH{"roles": []int64{auditor.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/auth/login", "", ginH{
		"username": "auditora", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, w.Code)
	auditorToken := decode[models.TokenPair](t, w).AccessToken

	t.Run("denied permission yields 403 and an audit row", func(t *testing.T) {
		before := len(env.store.AuditEvents())
		w := env.do(t, http.MethodGet, "/users", auditorToken, nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "AUTHZ_001", body["error"])

		events := env.store.AuditEvents()
		require.Greater(t, len(events), before)
		var denial bool
		for _, e := range events[before:] {
			if e.Kind == models.AuditAuthorization && e.Outcome == models.AuditOutcomeError {
				denial = true
			}
		}
		assert.True(t, denial)
	})

	t.Run("superuser bypasses permission checks", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/users", adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRBACEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.bootstrapAdmin(t)

	t.Run("role lifecycle", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/rbac/roles", adminToken, ginH{
			"nombre": "Supervisor", "permisos": []string{"alertas.leer"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		role := decode[models.RoleWithPermissions](t, w)
		assert.Equal(t, []string{"alertas.leer"}, role.PermissionCodes)

		w = env.do(t, http.MethodPatch, fmt.Sprintf("/rbac/roles/%d", role.ID), adminToken, ginH{
			"permisos": []string{"alertas.leer", "reportes.leer"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = env.do(t, http.MethodDelete, fmt.Sprintf("/rbac/roles/%d", role.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("system role modification returns 422", func(t *testing.T) {
		admin, err := env.store.Roles().ByName(context.Background(), "Administrador")
		require.NoError(t, err)
		w := env.do(t, http.MethodDelete, fmt.Sprintf("/rbac/roles/%d", admin.ID), adminToken, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("permission catalog is listable", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/rbac/permissions", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		perms := decode[[]models.Permission](t, w)
		assert.NotEmpty(t, perms)
	})
}

func TestSignalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.bootstrapAdmin(t)

	env.store.AddSignalCategory(&models.SignalCategory{ID: 1, Name: "Ruido", Active: true})
	env.store.AddSignalCategory(&models.SignalCategory{ID: 2, Name: "Crisis", Active: true})
	env.store.AddAnalysisCategory(&models.AnalysisCategory{ID: 10, Name: "Desinformación", Active: true})
	env.store.AddSignal(&models.Signal{ID: 100, CategoryID: 1, AnalysisID: 10,
		State: models.StateDetected, DetectedAt: time.Now(), RiskScore: 10})

	t.Run("category change without confirmation is 422", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/signals/100", adminToken, ginH{
			"id_categoria_senal": 2,
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "VAL_001", body["error"])
	})

	t.Run("confirmed change applies and appears in history", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/signals/100", adminToken, ginH{
			"id_categoria_senal": 2,
			"confirmo_revision":  true,
			"descripcion_cambio": "escalamiento",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		view := decode[models.SignalView](t, w)
		assert.Equal(t, "Crisis", view.CategoryName)
		assert.Equal(t, "red", view.Color)

		w = env.do(t, http.MethodGet, "/signals/100/history", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		rows := decode[[]models.SignalHistoryEntry](t, w)
		require.NotEmpty(t, rows)
		assert.Equal(t, "escalamiento", rows[0].Description)
	})

	t.Run("listing resolves names", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/signals?limit=10", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		views := decode[[]models.SignalView](t, w)
		require.NotEmpty(t, views)
		assert.NotEmpty(t, views[0].CategoryName)
	})

	t.Run("unknown signal is 404", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/signals/999", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapAdmin(t)

	w := env.do(t, http.MethodPost, "/password/solicitar", "", ginH{"email": "fundadora@sds.example"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	// Development mode surfaces the token.
	tokenStr, ok := body["reset_token"].(string)
	require.True(t, ok, w.Body.String())

	w = env.do(t, http.MethodPost, "/password/reset", "", ginH{
		"token": tokenStr, "new_password": "After#Reset9Phrase",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/auth/login", "", ginH{
		"username": "fundadora", "password": "After#Reset9Phrase",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	t.Run("reset requests are rate limited per IP", func(t *testing.T) {
		var last int
		for i := 0; i < 4; i++ {
			w := env.do(t, http.MethodPost, "/password/solicitar", "", ginH{"email": "x@sds.example"})
			last = w.Code
		}
		assert.Equal(t, http.StatusTooManyRequests, last)
	})

	t.Run("unknown email gets the uniform response", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/password/solicitar", "", ginH{"email": "nadie@sds.example"})
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]any](t, w)
		_, hasToken := body["reset_token"]
		assert.False(t, hasToken)
	})
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.bootstrapAdmin(t)

	t.Run("update then list", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/config/session_retention_days", adminToken, ginH{"valor": "14"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = env.do(t, http.MethodGet, "/config", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		values := decode[map[string]string](t, w)
		assert.Equal(t, "14", values["session_retention_days"])
	})

	t.Run("invalid key is 422", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/config/NoEsValida", adminToken, ginH{"valor": "1"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("anonymous access is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/config", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agg := decode[healthcheck.AggregatedResult](t, w)
	assert.Equal(t, healthcheck.StatusHealthy, agg.OverallStatus)
	assert.Contains(t, agg.Components, "store")
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	t.Run("caller request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "trace-123")
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))
	})
}

func TestGlobalRateLimit(t *testing.T) {
	cfgLimiter := newIPLimiter(2)
	assert.True(t, cfgLimiter.allow("10.0.0.1"))
	assert.True(t, cfgLimiter.allow("10.0.0.1"))
	assert.False(t, cfgLimiter.allow("10.0.0.1"))
	// Other IPs keep their own budget.
	assert.True(t, cfgLimiter.allow("10.0.0.2"))
}
