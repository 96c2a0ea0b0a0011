package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type IdentityProvider interface {
	// Resolve maps a bearer token to the caller, failing with ErrUnauthenticated
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}
