package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Cloud authenticates against a cloud identity provider by exchanging the
// credentials for a token, then reading profile claims from the userinfo
// endpoint.
type Cloud struct {
	cfg    config.CloudConfig
	oauth  *oauth2.Config
	client *http.Client
	logger *zap.Logger
}

// NewCloud creates the cloud identity provider.
func NewCloud(cfg config.CloudConfig, logger *zap.Logger) *Cloud {
	return &Cloud{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With(zap.String("provider", "cloud")),
	}
}

// Kind returns the cloud authentication kind.
func (*Cloud) Kind() models.AuthKind { return models.AuthKindCloud }

// Authenticate performs a resource-owner credential exchange and extracts
// profile claims from the provider's userinfo endpoint.
func (c *Cloud) Authenticate(ctx context.Context, username, password string) (*models.ExternalProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	tok, err := c.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			c.logger.Info("Cloud identity rejected credentials", zap.String("username", username))
			return nil, ErrRejected
		}
		c.logger.Warn("Cloud identity exchange failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	profile := &models.ExternalProfile{
		Username: username,
		Kind:     models.AuthKindCloud,
	}
	if c.cfg.UserInfoURL == "" {
		return profile, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return profile, nil
	}
	tok.SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		// Token exchange succeeded; a failed claim fetch is not a login failure.
		c.logger.Debug("Cloud userinfo fetch failed", zap.Error(err))
		return profile, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return profile, nil
	}

	var claims struct {
		Sub               string `json:"sub"`
		Name              string `json:"name"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		PhoneNumber       string `json:"phone_number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return profile, nil
	}

	profile.ExternalID = claims.Sub
	profile.FullName = claims.Name
	profile.Email = claims.Email
	profile.Phone = claims.PhoneNumber
	return profile, nil
}
