package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *handlers) manageOverview(c echo.Context) error {
	ov, err := h.svc.SelfService.Overview(c.Request().Context(), c.Param("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ov)
}

type manageCancelReq struct {
	SignupID int64  `json:"signup_id"`
	Reason   string `json:"reason"`
}

func (h *handlers) manageCancel(c echo.Context) error {
	var req manageCancelReq
	if err := c.Bind(&req); err != nil || req.SignupID <= 0 {
		return errorJSON(c, http.StatusBadRequest, "signup_id is required")
	}
	sum, err := h.svc.SelfService.Cancel(c.Request().Context(), c.Param("token"), req.SignupID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}
