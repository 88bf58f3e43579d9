package v1

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/hub"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 90 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 4 << 20
)

// WebSocket is the bidirectional form of /events: the server sends the same
// payloads as the SSE stream, one per text message, and the client may send
// a RunAgentInput to start a run on the session.
// GET /ws
func (h *Handler) WebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	session := h.service.Hub().Open()
	first, _ := json.Marshal(map[string]string{"agent": agentURL(session.Token)})
	session.TryPush(first)

	ctx, cancel := context.WithCancel(context.Background())
	go h.writePump(ctx, ws, session)
	h.readPump(ctx, ws, session)

	cancel()
	h.service.Hub().Close(session.Token)
	return nil
}

// readPump reads run submissions until the connection closes.
func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, session *hub.Session) {
	ws.SetReadLimit(wsMaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[%s] WebSocket error: %v", session.ShortToken(), err)
			}
			return
		}

		var input domain.RunAgentInput
		if err := json.Unmarshal(message, &input); err != nil {
			sendError(session, "invalid run input: "+err.Error())
			continue
		}
		frames, err := h.service.Submit(ctx, session.Token, &input, input.State.MessageID)
		if err != nil {
			sendError(session, err.Error())
			continue
		}
		// Frames are mirrored into the session queue; the writer sends those.
		go func() {
			for range frames {
			}
		}()
	}
}

// writePump writes queued payloads and keeps the connection alive.
func (h *Handler) writePump(ctx context.Context, ws *websocket.Conn, session *hub.Session) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	payloads := make(chan []byte)
	go func() {
		defer close(payloads)
		for {
			payload, err := session.Next(ctx)
			if err != nil {
				return
			}
			select {
			case payloads <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-payloads:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("[%s] failed to write message: %v", session.ShortToken(), err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sendError(session *hub.Session, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	if !session.TryPush(payload) {
		log.Printf("WARN: [%s] dropping error message: %s", session.ShortToken(), message)
	}
}
