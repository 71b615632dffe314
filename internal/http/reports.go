package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/http/middleware"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/repository"
	"github.com/mathemusician/church-volunteers/internal/util"
)

// listMessages serves the ledger report from ClickHouse.
func (h *handlers) listMessages(c echo.Context) error {
	orgID, _ := middleware.OrganizationIDFromCtx(c)
	if h.svc.Repos.Reports == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "reports not configured")
	}

	f := repository.MessageFilter{
		Limit:  intQuery(c, "limit", 50, 1000),
		Offset: intQuery(c, "offset", 0, 1<<20),
	}
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		if st := model.MessageStatus(raw); st.Valid() {
			f.Status = st
		}
	}
	if raw := strings.TrimSpace(c.QueryParam("type")); raw != "" {
		if t := model.MessageType(raw); t.Valid() {
			f.Type = t
		}
	}
	if raw := strings.TrimSpace(c.QueryParam("phone")); raw != "" {
		p, err := util.NormalizePhone(raw)
		if err != nil {
			return respondError(c, model.Invalid("phone", "must be a 10-digit US number"))
		}
		f.Phone = p
	}

	msgs, err := h.svc.Repos.Reports.ListByOrganization(c.Request().Context(), orgID, f)
	if err != nil {
		c.Logger().Errorf("clickhouse list failed: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "query failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"limit":   f.Limit,
		"offset":  f.Offset,
		"count":   len(msgs),
		"results": msgs,
	})
}
