package api

import (
	"crypto/subtle"
	"errors"
	"io"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	xlogger "SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

const adminTokenHeader = "X-Admin-Token"

// AdminHandler exposes runtime config and event maintenance behind X-Admin-Token.
type AdminHandler struct {
	logger *xlogger.Logger
	admin  *usecase.AdminService
	token  string
}

func NewAdminHandler(logger *xlogger.Logger, admin *usecase.AdminService, token string) *AdminHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AdminHandler{logger: logger.With("admin_api"), admin: admin, token: token}
}

func (h *AdminHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/admin", h.requireToken)
	g.GET("/config", h.GetConfig)
	g.POST("/config", h.ReplaceConfig)
	g.DELETE("/events/:symbol", h.DeleteEvent)
}

// requireToken rejects every request when no token is configured.
func (h *AdminHandler) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(adminTokenHeader)
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid admin token"))
		}
		return next(c)
	}
}

func (h *AdminHandler) GetConfig(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.admin.Config())
}

func (h *AdminHandler) ReplaceConfig(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cannot read body").WithError(err))
	}
	cfg, err := h.admin.ReplaceConfig(c.Request().Context(), body)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidConfig) {
			return xhttp.AppErrorResponse(c, xhttp.FieldError(xhttp.CodeInvalidConfig, "", err.Error()))
		}
		h.logger.Error("config replace failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, cfg)
}

func (h *AdminHandler) DeleteEvent(c echo.Context) error {
	req := &models.DeleteEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.admin.DeleteEvent(c.Request().Context(), req.Symbol, req.EventID)
	if err != nil {
		h.logger.Error("delete event failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
