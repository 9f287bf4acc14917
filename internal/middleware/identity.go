package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// Context keys set by JWTAuth.
const (
	ctxUser   = "user"
	ctxUserID = "user_id"
	ctxRoles  = "roles"
)

// CurrentUser returns the user JWTAuth resolved for this request.
func CurrentUser(c echo.Context) (model.PublicUser, bool) {
	u, ok := c.Get(ctxUser).(model.PublicUser)
	return u, ok
}

// userID is the rate-limit identity: the authenticated id or "anon".
func userID(c echo.Context) string {
	if id, ok := c.Get(ctxUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
