package http

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/model"
)

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func intQuery(c echo.Context, name string, def, max int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= max {
			return n
		}
	}
	return def
}
