// Package handler contains the HTTP handlers that expose the
// reservation core to clients, the payment provider and operators.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness endpoint used by load balancers and
// monitoring.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
