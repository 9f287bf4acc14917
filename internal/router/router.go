// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/config"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/handler"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/middleware"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/service"
)

// Deps is everything the routes need.
type Deps struct {
	Auth      service.AuthService
	DB        *database.DB
	RateLimit config.RateLimitConfig
	Redis     *redis.Client // nil disables rate limiting
	Log       *zap.Logger
}

// New builds the echo instance with the error envelope, recovery, request
// logging and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)
	e.Use(middleware.RequestLogger(d.Log), middleware.Recover(d.Log))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, handler.NewAuthHandler(d.Auth), d.Auth, middleware.RateLimit(d.RateLimit, d.Redis, d.Log))
	RegisterUsers(e, handler.NewUserHandler(d.Auth), d.Auth)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db *database.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers /v1/auth. The credential endpoints share the rate
// limiter, logout included; logout is reachable without a valid token and
// always succeeds.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth service.AuthService, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")

	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/forgot-password", a.ForgotPassword, limit)
	g.POST("/reset-password", a.ResetPassword, limit)
	g.POST("/logout", a.Logout, limit)

	jwt := middleware.JWTAuth(auth)
	g.GET("/me", a.Me, jwt)
	g.PUT("/password", a.ChangePassword, jwt, limit)
	g.POST("/logout-all", a.LogoutAll, jwt)
}

// RegisterUsers registers the admin user endpoints under /v1/users.
// Lookups need readonly-admin, role changes need admin.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, auth service.AuthService) {
	g := e.Group("/v1/users", middleware.JWTAuth(auth))

	g.GET("", u.GetByEmail, middleware.RequireRole(auth, model.RoleReadonlyAdmin))
	g.GET("/:id", u.GetByID, middleware.RequireRole(auth, model.RoleReadonlyAdmin))
	g.PUT("/:id/roles", u.SetRoles, middleware.RequireRole(auth, model.RoleAdmin))
}
