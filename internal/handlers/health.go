package handlers

import (
	"net/http"

	"clipdigest/internal/version"

	"github.com/labstack/echo/v4"
)

// Health reports liveness.
// GET /health
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
