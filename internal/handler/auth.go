package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/middleware"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/service"
)

// requestTimeout bounds the store and hashing work of a single request.
const requestTimeout = 5 * time.Second

// AuthHandler serves /v1/auth.
type AuthHandler struct {
	Auth service.AuthService
}

func NewAuthHandler(auth service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

func deviceInfo(c echo.Context) string {
	ua := c.Request().UserAgent()
	if len(ua) > 200 {
		ua = ua[:200]
	}
	return ua
}

// Register: create the user and return a token pair. 201 on success.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password, deviceInfo(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, res)
}

// Login: verify credentials and return a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password, deviceInfo(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res)
}

// Refresh: exchange a refresh token for a new access token. The refresh
// token is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	tokens, err := h.Auth.RefreshAccessToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"tokens": tokens})
}

// Logout blacklists the bearer token and, when a refresh_token is supplied,
// revokes it too. It always answers 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	_ = h.Auth.Logout(ctx, c.Request().Header.Get(echo.HeaderAuthorization))

	var req refreshReq
	if c.Request().ContentLength != 0 && bind(c, &req) == nil && req.validate() == nil {
		_ = h.Auth.RevokeRefreshToken(ctx, req.RefreshToken)
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// LogoutAll revokes every refresh token of the caller and blacklists the
// bearer token used for the call.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.ErrInvalidToken
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Auth.LogoutAll(ctx, u.ID)
	if err != nil {
		return err
	}
	_ = h.Auth.Logout(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
	return respond(c, http.StatusOK, echo.Map{"revoked": n})
}

// ForgotPassword answers with the same message whether or not the email is
// registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	msg, err := h.Auth.ForgotPassword(ctx, req.Email)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": msg})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Password has been reset"})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.ErrInvalidToken
	}
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Password changed"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.ErrInvalidToken
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}
