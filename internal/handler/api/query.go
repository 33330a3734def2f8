package api

import (
	"errors"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	xlogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"

	"github.com/labstack/echo/v4"
)

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// QueryHandler serves snapshots, events, prices and service status.
type QueryHandler struct {
	logger *xlogger.Logger
	query  *usecase.QueryService
}

func NewQueryHandler(logger *xlogger.Logger, query *usecase.QueryService) *QueryHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &QueryHandler{logger: logger.With("query_api"), query: query}
}

func (h *QueryHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/latest", h.Latest)
	e.GET("/events", h.Events)
	e.GET("/price", h.Price)
	e.GET("/status", h.Status)
	e.GET("/decisions", h.Decisions)
}

func (h *QueryHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.query.Latest(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

func (h *QueryHandler) Events(c echo.Context) error {
	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.Events(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) Price(c echo.Context) error {
	req := &models.PriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.Price(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QueryHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.query.Status(c.Request().Context()))
}

func (h *QueryHandler) Decisions(c echo.Context) error {
	req := &DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, fromOK := util.ParseTime(req.From)
	if req.From != "" && !fromOK {
		return xhttp.AppErrorResponse(c, xhttp.FieldError(xhttp.CodeBadRequest, "from", "cannot parse from"))
	}
	to, toOK := util.ParseTime(req.To)
	if req.To != "" && !toOK {
		return xhttp.AppErrorResponse(c, xhttp.FieldError(xhttp.CodeBadRequest, "to", "cannot parse to"))
	}
	rows, err := h.query.Decisions(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		return h.fail(c, err)
	}
	if rows == nil {
		rows = []models.RulesResult{}
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *QueryHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, usecase.ErrInvalidQuery):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	h.logger.Error("query failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
