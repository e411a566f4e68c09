package providers

import (
	"context"

	"github.com/sds-platform/sds-core/internal/models"
)

// Local is the marker provider for database-backed password accounts. The
// credential check lives in the auth service, which owns the user row and the
// bcrypt verify.
type Local struct{}

// NewLocal creates the local provider marker.
func NewLocal() *Local { return &Local{} }

// Kind returns the local authentication kind.
func (*Local) Kind() models.AuthKind { return models.AuthKindLocal }

// Authenticate always returns ErrDelegated.
func (*Local) Authenticate(context.Context, string, string) (*models.ExternalProfile, error) {
	return nil, ErrDelegated
}
