package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
)

// Health reports whether the data file can be read. Load balancers poll it.
func Health(db *database.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.View(ctx, func(*database.Document) error { return nil }); err != nil {
			return apperr.Database("healthz", err)
		}
		return respond(c, http.StatusOK, echo.Map{"status": "ok"})
	}
}
