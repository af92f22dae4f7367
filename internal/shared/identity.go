package shared

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Role enumerates the account roles the platform understands.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

// CanApprove reports whether the role may act on approval logs.
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}

// Principal identifies the authenticated caller. Authentication itself is
// handled upstream; the gateway forwards the resolved identity in headers.
type Principal struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      Role
}

// Valid reports whether the principal carries usable identifiers.
func (p Principal) Valid() bool {
	return p.UserID != uuid.Nil && p.CompanyID != uuid.Nil
}

type principalKey struct{}

// ContextWithPrincipal stores the principal on the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller identity, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.Valid()
}

// IdentityMiddleware parses the gateway identity headers into the request
// context. Requests without identity pass through; handlers that need a
// principal reject them individually.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, errUser := uuid.Parse(r.Header.Get("X-User-ID"))
		companyID, errCompany := uuid.Parse(r.Header.Get("X-Company-ID"))
		if errUser == nil && errCompany == nil {
			role := Role(r.Header.Get("X-User-Role"))
			switch role {
			case RoleEmployee, RoleManager, RoleAdmin:
			default:
				role = RoleEmployee
			}
			ctx := ContextWithPrincipal(r.Context(), Principal{
				UserID:    userID,
				CompanyID: companyID,
				Role:      role,
			})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
