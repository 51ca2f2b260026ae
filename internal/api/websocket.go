package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"route-animator/internal/hub"
	"route-animator/internal/playback"
)

type WSHandler struct {
	hub    *hub.Hub
	scene  hub.Snapshotter
	ctrl   Controller
	logger zerolog.Logger
}

func NewWSHandler(h *hub.Hub, scene hub.Snapshotter, ctrl Controller, logger zerolog.Logger) *WSHandler {
	return &WSHandler{hub: h, scene: scene, ctrl: ctrl, logger: logger}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), 256)
	if err := h.hub.Attach(client, h.scene); err != nil {
		h.logger.Error().Err(err).Msg("attach client")
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Detach(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		cmd, err := playback.DecodeCommand(data)
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", client.ID).Msg("invalid message format")
			h.hub.Reply(client, hub.ErrorMessage{Type: "error", Error: err.Error()})
			continue
		}
		if cmd.Type == "ping" {
			h.hub.Reply(client, hub.PongMessage{Type: "pong"})
			continue
		}
		if err := h.ctrl.Handle(ctx, cmd); err != nil {
			h.hub.Reply(client, hub.ErrorMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
