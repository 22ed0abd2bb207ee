package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller: the user acting, the tenant the
// action is scoped to, and the caller's role. Authentication mechanics live
// upstream; this package only carries the resolved identity.
type Identity struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

// ContextWithIdentity returns a new context carrying the authenticated caller.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated caller from the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	value := ctx.Value(identityKey)
	if value == nil {
		return Identity{}, false
	}
	id, ok := value.(Identity)
	if !ok {
		return Identity{}, false
	}
	if id.CompanyID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}

// EnforceCompanyScope ensures the provided company matches the authenticated
// tenant when one is present on the context.
func EnforceCompanyScope(ctx context.Context, companyID uuid.UUID) error {
	if companyID == uuid.Nil {
		return fmt.Errorf("companyId is required")
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	if id.CompanyID != companyID {
		return fmt.Errorf("companyId %s does not match authenticated scope", companyID)
	}
	return nil
}
