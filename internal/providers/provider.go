// Package providers implements the authentication back-ends: local password,
// LDAP directory and cloud identity, behind one Provider contract.
package providers

import (
	"context"
	"errors"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"go.uber.org/zap"
)

// ErrDelegated is returned by the local provider: the credential check needs
// the database, so the auth service performs it itself.
var ErrDelegated = errors.New("providers: authentication delegated to auth service")

// ErrUnavailable marks transient back-end failures (timeout, server down) so
// the auth service can surface service-unavailable instead of bad-credentials.
var ErrUnavailable = errors.New("providers: back-end unavailable")

// ErrRejected marks a definitive credential rejection by the back-end.
var ErrRejected = errors.New("providers: credentials rejected")

// Provider is the uniform contract over authentication back-ends.
type Provider interface {
	// Kind returns the authentication kind this provider serves.
	Kind() models.AuthKind
	// Authenticate checks credentials and, on success, returns the profile
	// reported by the back-end. The local provider returns ErrDelegated.
	Authenticate(ctx context.Context, username, password string) (*models.ExternalProfile, error)
}

// Factory enumerates enabled providers in configuration order.
type Factory struct {
	providers []Provider
}

// NewFactory builds the provider list from configuration. The local provider
// is always first; directory and cloud follow when enabled.
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := []Provider{NewLocal()}
	if cfg.Directory.Enabled {
		providers = append(providers, NewDirectory(cfg.Directory, logger))
	}
	if cfg.Cloud.Enabled {
		providers = append(providers, NewCloud(cfg.Cloud, logger))
	}
	return &Factory{providers: providers}
}

// FactoryOf builds a factory from an explicit provider list.
func FactoryOf(ps ...Provider) *Factory {
	return &Factory{providers: ps}
}

// ByKind returns the provider serving the given kind, or nil.
func (f *Factory) ByKind(kind models.AuthKind) Provider {
	for _, p := range f.providers {
		if p.Kind() == kind {
			return p
		}
	}
	return nil
}

// External returns the enabled non-local providers in configuration order.
// These are tried for onboarding when no local record exists.
func (f *Factory) External() []Provider {
	out := make([]Provider, 0, len(f.providers))
	for _, p := range f.providers {
		if p.Kind() != models.AuthKindLocal {
			out = append(out, p)
		}
	}
	return out
}

// All returns every enabled provider.
func (f *Factory) All() []Provider {
	return f.providers
}
