package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// RoleChecker decides whether a user satisfies a required role.
type RoleChecker interface {
	HasRole(user model.PublicUser, required model.Role) bool
}

// RequireRole admits users holding required or any role above it in the
// hierarchy. It must run after JWTAuth.
func RequireRole(auth RoleChecker, required model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.ErrInvalidToken
			}
			if !auth.HasRole(u, required) {
				return apperr.ErrForbidden
			}
			return next(c)
		}
	}
}
