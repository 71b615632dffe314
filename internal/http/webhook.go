package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mathemusician/church-volunteers/internal/service/replies"
)

const maxWebhookBody = 64 << 10

func webhookProbe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// smsWebhook needs the raw body: the signature covers the exact bytes.
func (h *handlers) smsWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "unreadable body")
	}
	out, err := h.svc.Ingestor.Ingest(c.Request().Context(), body, replies.SignatureHeaders{
		Signature: c.Request().Header.Get(replies.HeaderSignature),
		Timestamp: c.Request().Header.Get(replies.HeaderTimestamp),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
