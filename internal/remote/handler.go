package remote

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeTimeout = 5 * time.Second

// Handler owns the websocket transport for the control-plane (spec §4.G).
//
// Grounded almost directly on
// rustyguts-bken/server/internal/ws/handler.go's Handler: an upgrader, a
// per-connection send goroutine draining the hub's per-client channel,
// and a read loop dispatching inbound frames.
type Handler struct {
	hub      *Hub
	port     EvaluatorPort
	upgrader websocket.Upgrader
	log      *log.Logger
}

// NewHandler builds a Handler broadcasting through hub and applying
// commands through port.
func NewHandler(hub *Hub, port EvaluatorPort, logger *log.Logger) *Handler {
	return &Handler{
		hub:  hub,
		port: port,
		log:  logger.With("component", "remote.ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(_ *http.Request) bool { return true },
			Subprotocols: []string{Subprotocol},
		},
	}
}

// Register binds the websocket route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request, rejecting it if the client did
// not offer the fernspielctl subprotocol (spec §4.G subprotocol
// negotiation), then serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("upgrade failed", "remote", c.RealIP(), "err", err)
		return err
	}
	if conn.Subprotocol() != Subprotocol {
		h.log.Warn("client did not negotiate fernspielctl, closing", "remote", c.RealIP())
		_ = conn.Close()
		return nil
	}
	h.serveConn(conn, c.RealIP())
	return nil
}

func (h *Handler) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	id, send := h.hub.Join()
	h.log.Info("remote client connected", "remote", remoteAddr, "client", id)
	defer func() {
		h.hub.Leave(id)
		h.log.Info("remote client disconnected", "remote", remoteAddr, "client", id)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range send {
			data, err := EncodeFrame(frame)
			if err != nil {
				h.log.Warn("failed to encode outbound frame", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("write failed", "client", id, "err", err)
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("unexpected close", "client", id, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			h.log.Warn("binary frame received, closing connection", "client", id)
			return
		}
		if err := h.handleInbound(data); err != nil {
			h.log.Warn("malformed command, closing connection", "client", id, "err", err)
			return
		}
	}
}

// handleInbound decodes and applies one command. Per spec §4.G/§6, a
// malformed frame (undecodable, unknown root keys, unknown invoke, bad
// payload) closes the offending connection orderly; it is never broadcast
// to other clients.
func (h *Handler) handleInbound(data []byte) error {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return err
	}
	if cmd.UUID == "" {
		cmd.UUID = uuid.NewString()
	}
	return h.port.Apply(cmd)
}
