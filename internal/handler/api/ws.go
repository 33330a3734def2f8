package api

import (
	"net/http"
	"time"

	"SignalDesk/internal/usecase"
	xlogger "SignalDesk/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteWait = 5 * time.Second

// PriceSocketHandler streams the live price map over a websocket.
type PriceSocketHandler struct {
	logger   *xlogger.Logger
	relay    *usecase.PriceRelay
	upgrader websocket.Upgrader
}

func NewPriceSocketHandler(logger *xlogger.Logger, relay *usecase.PriceRelay) *PriceSocketHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PriceSocketHandler{
		logger: logger.With("ws"),
		relay:  relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *PriceSocketHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/prices", h.Prices)
}

// Prices writes {"prices": {...}, "ts": ms} on every relay tick until the
// client goes away.
func (h *PriceSocketHandler) Prices(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	updates, unsubscribe := h.relay.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case prices, ok := <-updates:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			msg := map[string]interface{}{"prices": prices, "ts": time.Now().UnixMilli()}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("price socket write failed", xlogger.Error(err))
				return nil
			}
		}
	}
}
