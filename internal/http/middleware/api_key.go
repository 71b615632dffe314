package middleware

import (
	"net/http"
	"strings"

	"github.com/mathemusician/church-volunteers/internal/repository"
	echo "github.com/labstack/echo/v4"
)

const ctxOrganizationID = "organization_id"

// OrganizationIDFromCtx extracts the organization set by APIKeyMiddleware.
func OrganizationIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxOrganizationID).(int64)
	return id, ok && id > 0
}

// APIKeyMiddleware authenticates admin requests by the organization's
// X-API-Key. Suspended organizations are refused.
func APIKeyMiddleware(orgs repository.OrganizationsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			org, err := orgs.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if org == nil || org.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxOrganizationID, org.ID)
			return next(c)
		}
	}
}
