package rawws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/broadcast"
	apperrors "github.com/pscheid92/activate/internal/platform/errors"
)

const maxChannelIDLength = 128

// Hub is the subset of broadcast.Hub the handler drives.
type Hub interface {
	OnClientConnectWith(ctx context.Context, channelID, clientID string, deliver func(broadcast.Snapshot)) broadcast.Snapshot
	OnClientDisconnect(ctx context.Context, channelID, clientID string)
}

// Handler upgrades display clients on /ws/:visualizerId and joins them to the hub.
type Handler struct {
	hub      Hub
	gateway  *Gateway
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. checkOrigin may be nil to accept any origin.
func NewHandler(hub Hub, gateway *Gateway, checkOrigin func(r *http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:     hub,
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Serve is the echo handler. It blocks until the client goes away.
func (h *Handler) Serve(c echo.Context) error {
	channelID := c.Param("visualizerId")
	if channelID == "" || len(channelID) > maxChannelIDLength {
		return apperrors.ValidationError("invalid visualizer id").WithField("visualizer_id", channelID)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "channel_id", channelID, "error", err)
		return nil
	}

	clientID := uuid.NewString()
	if err := h.gateway.Register(channelID, clientID, conn); err != nil {
		slog.Warn("Failed to register display client", "channel_id", channelID, "error", err)
		return nil
	}

	// The request context ends with the handler, so the hub gets a detached one.
	ctx := context.WithoutCancel(c.Request().Context())
	h.hub.OnClientConnectWith(ctx, channelID, clientID, func(snap broadcast.Snapshot) {
		msgs, err := snap.Messages(channelID)
		if err != nil {
			slog.Error("Failed to encode snapshot", "channel_id", channelID, "error", err)
			return
		}
		h.gateway.Send(clientID, msgs...)
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.OnClientDisconnect(ctx, channelID, clientID)
	h.gateway.Unregister(clientID)

	return nil //nolint:nilerr // read errors end the session, they are not request errors
}
