package auth

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
)

// ErrNotAuthorized is returned when the acting principal is not allowed to
// perform the requested operation.
var ErrNotAuthorized = errors.New("principal is not authorized for this operation")

type Role string

const (
	RoleCustomer Role = "customer"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller, resolved once by the external auth
// layer. The role is explicit: no lookups are needed downstream to tell a
// customer from a pharmacy.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
