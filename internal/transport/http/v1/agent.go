package v1

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fzzzy/aguitest/internal/domain"
)

// SubmitRun starts a run on the session named by the token query parameter
// and streams the run's frames.
// POST /agent?token=...&message_id=...
func (h *Handler) SubmitRun(c echo.Context) error {
	token := c.QueryParam("token")
	if _, err := h.service.Hub().Lookup(token); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Invalid or expired token"})
	}

	var input domain.RunAgentInput
	if err := json.NewDecoder(c.Request().Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run input: " + err.Error()})
	}

	frames, err := h.service.Submit(c.Request().Context(), token, &input, c.QueryParam("message_id"))
	if err != nil {
		return runError(c, err)
	}

	startSSE(c).relay(frames)
	return nil
}

// RunMessage runs the agent over the stored conversation ending at
// message_id.
// GET /agent?message_id=...
func (h *Handler) RunMessage(c echo.Context) error {
	messageID := c.QueryParam("message_id")
	if messageID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message_id is required"})
	}

	frames, err := h.service.RunStateless(c.Request().Context(), messageID)
	if err != nil {
		return runError(c, err)
	}

	startSSE(c).relay(frames)
	return nil
}

func runError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Message not found"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: failed to start run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
