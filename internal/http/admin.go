package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/http/middleware"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/service/instancing"
	"github.com/mathemusician/church-volunteers/internal/service/registry"
)

type generateReq struct {
	Weeks int    `json:"weeks"`
	From  string `json:"from"` // YYYY-MM-DD, optional
}

func (h *handlers) generate(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	templateID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req generateReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad request")
	}

	opts := instancing.Options{Weeks: req.Weeks}
	if s := strings.TrimSpace(req.From); s != "" {
		from, err := time.Parse(model.DateLayout, s)
		if err != nil {
			return respondError(c, model.Invalid("from", "expected YYYY-MM-DD"))
		}
		opts.From = &from
	}

	ctx := c.Request().Context()
	if err := h.own.event(ctx, orgID, templateID); err != nil {
		return respondError(c, err)
	}

	res, err := h.svc.Generator.Generate(ctx, templateID, opts)
	if err != nil {
		if len(res.Created) > 0 {
			c.Logger().Errorf("generate template=%d stopped after %d: %v", templateID, len(res.Created), err)
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error":   "generation stopped early",
				"created": res.Created,
				"skipped": res.Skipped,
			})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type remindersReq struct {
	SignupID *int64 `json:"signup_id"`
	ListID   *int64 `json:"list_id"`
	EventID  *int64 `json:"event_id"`
}

// sendReminders reports aggregate counts; ?detail=true adds per-signup rows.
func (h *handlers) sendReminders(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	var req remindersReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad request")
	}
	scope := model.Scope{SignupID: req.SignupID, ListID: req.ListID, EventID: req.EventID}

	ctx := c.Request().Context()
	if err := h.own.scope(ctx, orgID, scope); err != nil {
		return respondError(c, err)
	}
	rep, err := h.svc.Dispatcher.SendReminders(ctx, scope)
	if err != nil {
		return respondError(c, err)
	}
	if c.QueryParam("detail") != "true" {
		rep.Results = nil
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *handlers) reminderStatuses(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	listID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.own.list(ctx, orgID, listID); err != nil {
		return respondError(c, err)
	}
	out, err := h.svc.Dispatcher.ReminderStatuses(ctx, listID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"list_id": listID, "signups": out})
}

func (h *handlers) adminRegister(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	listID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var v registry.Volunteer
	if err := c.Bind(&v); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad request")
	}
	ctx := c.Request().Context()
	if err := h.own.list(ctx, orgID, listID); err != nil {
		return respondError(c, err)
	}
	s, err := h.svc.Registry.RegisterOverride(ctx, listID, v)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *handlers) adminCancel(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	signupID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.own.signup(ctx, orgID, signupID); err != nil {
		return respondError(c, err)
	}
	s, err := h.svc.Registry.Cancel(ctx, signupID, c.QueryParam("reason"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *handlers) conversations(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	out, err := h.svc.Inbox.Conversations(c.Request().Context(), orgID, intQuery(c, "limit", 0, 500))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
}

func (h *handlers) thread(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	out, err := h.svc.Inbox.Thread(c.Request().Context(), orgID, c.Param("phone"), intQuery(c, "limit", 0, 500))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
}

func (h *handlers) markRead(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	n, err := h.svc.Inbox.MarkRead(c.Request().Context(), orgID, c.Param("phone"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"marked": n})
}
