package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *handlers) maintainInstances(c echo.Context) error {
	results, err := h.svc.Generator.MaintainAll(c.Request().Context(), h.now())
	created := 0
	for _, r := range results {
		created += len(r.Created)
	}
	body := map[string]any{"templates": len(results), "created": created, "results": results}
	if err != nil {
		c.Logger().Errorf("horizon maintenance: %v", err)
		body["error"] = "some templates failed"
		return c.JSON(http.StatusInternalServerError, body)
	}
	return c.JSON(http.StatusOK, body)
}
