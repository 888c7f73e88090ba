package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/user"
)

// anyRoleMiddleware guards an endpoint group behind an explicit role set.
// An empty set admits any authenticated identity.
func anyRoleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	required := policy.NewRoleSet(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			return guard(ctx, required, next)
		}
	}
}

// tableRoleMiddleware guards an endpoint group with the role set the policy
// table assigns to the request path, so API enforcement and page routing
// share one source of truth.
func tableRoleMiddleware(table *policy.Table) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			return guard(ctx, table.RequiredRoles(ctx.Request().URL.Path), next)
		}
	}
}

func guard(ctx echo.Context, required policy.RoleSet, next echo.HandlerFunc) error {
	ident := claimsIdentity(ctx)
	switch policy.Decide(required, ident, true) {
	case policy.Allow:
		return next(ctx)
	case policy.DenyNoIdentity:
		return errUnauthorized
	default:
		return &insufficientRoleError{Required: required.Roles(), Actual: ident.Role}
	}
}
