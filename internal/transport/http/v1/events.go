package v1

import (
	"encoding/json"
	"log"

	"github.com/labstack/echo/v4"
)

// agentURL is the run submission URL handed to a new session.
func agentURL(token string) string {
	return "/agent?token=" + token
}

// Events opens a session and streams its queue until the client disconnects.
// The first frame carries the session's run submission URL.
// POST /events, GET /events
func (h *Handler) Events(c echo.Context) error {
	hub := h.service.Hub()
	session := hub.Open()
	defer hub.Close(session.Token)

	tag := session.ShortToken()
	log.Printf("[%s] /events client connected", tag)

	w := startSSE(c)
	first, err := json.Marshal(map[string]string{"agent": agentURL(session.Token)})
	if err != nil {
		return err
	}
	if err := w.write(first); err != nil {
		return nil
	}

	ctx := c.Request().Context()
	for {
		payload, err := session.Next(ctx)
		if err != nil {
			log.Printf("[%s] /events client disconnected", tag)
			return nil
		}
		if err := w.write(payload); err != nil {
			log.Printf("[%s] /events write failed: %v", tag, err)
			return nil
		}
	}
}
