package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactoryComposition(t *testing.T) {
	t.Run("local only by default", func(t *testing.T) {
		f := NewFactory(&config.Config{}, zap.NewNop())
		assert.NotNil(t, f.ByKind(models.AuthKindLocal))
		assert.Nil(t, f.ByKind(models.AuthKindDirectory))
		assert.Nil(t, f.ByKind(models.AuthKindCloud))
		assert.Empty(t, f.External())
	})

	t.Run("enabled providers are listed in order", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Directory.Enabled = true
		cfg.Directory.Host = "ldap.sds.example"
		cfg.Cloud.Enabled = true
		cfg.Cloud.TokenURL = "https://idp.sds.example/token"

		f := NewFactory(cfg, zap.NewNop())
		ext := f.External()
		require.Len(t, ext, 2)
		assert.Equal(t, models.AuthKindDirectory, ext[0].Kind())
		assert.Equal(t, models.AuthKindCloud, ext[1].Kind())
	})
}

func TestLocalDelegates(t *testing.T) {
	_, err := NewLocal().Authenticate(context.Background(), "analista", "clave")
	assert.ErrorIs(t, err, ErrDelegated)
}

func TestCloudAuthenticate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("password") != "clave-valida" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "ext-42",
			"name":  "María López",
			"email": "maria.lopez@sds.example",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := NewCloud(config.CloudConfig{
		Enabled:     true,
		ClientID:    "sds",
		TokenURL:    srv.URL + "/token",
		UserInfoURL: srv.URL + "/userinfo",
	}, zap.NewNop())

	t.Run("valid credentials yield a profile", func(t *testing.T) {
		profile, err := provider.Authenticate(context.Background(), "maria", "clave-valida")
		require.NoError(t, err)
		assert.Equal(t, "ext-42", profile.ExternalID)
		assert.Equal(t, "maria.lopez@sds.example", profile.Email)
		assert.Equal(t, models.AuthKindCloud, profile.Kind)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		_, err := provider.Authenticate(context.Background(), "maria", "incorrecta")
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("server outage maps to unavailable", func(t *testing.T) {
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer down.Close()

		p := NewCloud(config.CloudConfig{TokenURL: down.URL + "/token"}, zap.NewNop())
		_, err := p.Authenticate(context.Background(), "maria", "clave-valida")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
