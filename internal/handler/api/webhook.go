package api

import (
	"encoding/json"
	"errors"
	"io"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/normalizer"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	xlogger "SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// maxWebhookBody bounds the alert payload read from TradingView.
const maxWebhookBody = 64 << 10

// WebhookHandler receives TradingView alerts.
type WebhookHandler struct {
	logger *xlogger.Logger
	ingest *usecase.Ingestor
}

func NewWebhookHandler(logger *xlogger.Logger, ingest *usecase.Ingestor) *WebhookHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &WebhookHandler{logger: logger.With("webhook"), ingest: ingest}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/tv-webhook", h.Receive)
}

// Receive reads the body raw because TradingView posts text/plain.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cannot read body").WithError(err))
	}
	var raw models.RawAlert
	if err := json.Unmarshal(body, &raw); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.FieldError(xhttp.CodeInvalidJSON, "", "body is not a JSON object"))
	}
	if !h.ingest.Authorize(raw.Secret) {
		h.logger.Warn("webhook secret mismatch", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid secret"))
	}

	resp, err := h.ingest.Ingest(c.Request().Context(), raw)
	if err != nil {
		var nerr *normalizer.NormalizeError
		if errors.As(err, &nerr) {
			return xhttp.AppErrorResponse(c, xhttp.FieldError(nerr.Code, nerr.Field, nerr.Message))
		}
		h.logger.Error("ingest failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, resp)
}
