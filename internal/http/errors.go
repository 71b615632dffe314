package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/service/instancing"
	"github.com/mathemusician/church-volunteers/internal/service/replies"
)

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// respondError maps domain errors onto status codes. Anything unrecognised
// is logged and reported as a 500 without detail.
func respondError(c echo.Context, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, model.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrListFull):
		return errorJSON(c, http.StatusConflict, "full")
	case errors.Is(err, model.ErrListLocked):
		return errorJSON(c, http.StatusConflict, "locked")
	case errors.Is(err, model.ErrAlreadyCancelled):
		return errorJSON(c, http.StatusConflict, "already cancelled")
	case errors.Is(err, model.ErrTokenExpired):
		return errorJSON(c, http.StatusGone, "link expired")
	case errors.Is(err, replies.ErrUnauthenticated):
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, instancing.ErrNotTemplate):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return errorJSON(c, http.StatusInternalServerError, "internal error")
}
