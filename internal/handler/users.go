package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/service"
)

// UserHandler serves the admin user lookups under /v1/users.
type UserHandler struct {
	Auth service.AuthService
}

func NewUserHandler(auth service.AuthService) *UserHandler {
	return &UserHandler{Auth: auth}
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id must be a positive integer")
	}
	return id, nil
}

// GetByID: GET /v1/users/:id.
func (h *UserHandler) GetByID(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// GetByEmail: GET /v1/users?email=.
func (h *UserHandler) GetByEmail(c echo.Context) error {
	email, err := validEmail(c.QueryParam("email"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// SetRoles: PUT /v1/users/:id/roles, admin only.
func (h *UserHandler) SetRoles(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req setRolesReq
	if err := bind(c, &req); err != nil {
		return err
	}
	roles, err := req.parse()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.SetRoles(ctx, id, roles)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}
