package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// TokenResolver turns an access token into the user it belongs to.
type TokenResolver interface {
	GetUserFromToken(ctx context.Context, accessToken string) (model.PublicUser, error)
}

// JWTAuth requires a valid, non-blacklisted Bearer access token and stores
// the resolved user in the context under "user", with "user_id" and "roles"
// alongside for handlers and downstream middleware.
func JWTAuth(auth TokenResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
				return apperr.New(apperr.CodeInvalidToken, "missing bearer token")
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := auth.GetUserFromToken(ctx, header)
			if err != nil {
				return err
			}
			c.Set(ctxUser, u)
			c.Set(ctxUserID, u.ID)
			c.Set(ctxRoles, u.Roles)
			return next(c)
		}
	}
}
