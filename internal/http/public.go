package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/service/registry"
)

// register is the public signup form. A full list answers 409 with the next
// date that still has room, so the page can move the volunteer along.
func (h *handlers) register(c echo.Context) error {
	listID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var v registry.Volunteer
	if err := c.Bind(&v); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad request")
	}

	ctx := c.Request().Context()
	s, err := h.svc.Registry.Register(ctx, listID, v)
	if errors.Is(err, model.ErrListFull) {
		next, nerr := h.svc.Registry.NextOpen(ctx, listID)
		if nerr != nil {
			c.Logger().Warnf("next open list=%d: %v", listID, nerr)
		}
		return c.JSON(http.StatusConflict, map[string]any{"error": "full", "next_open": next})
	}
	if err != nil {
		return respondError(c, err)
	}

	body := map[string]any{"signup": s}
	if s.Phone != nil && s.SMSConsent && !s.SMSOptedOut {
		res, err := h.svc.Dispatcher.SendConfirmation(ctx, s.ID)
		if err != nil {
			c.Logger().Warnf("confirmation signup=%d: %v", s.ID, err)
		} else {
			body["confirmation"] = res.Status
		}
	}
	return c.JSON(http.StatusCreated, body)
}

func (h *handlers) siblings(c echo.Context) error {
	listID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.svc.Registry.Siblings(c.Request().Context(), listID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"list_id": listID, "siblings": out})
}
