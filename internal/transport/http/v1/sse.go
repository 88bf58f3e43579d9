package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fzzzy/aguitest/internal/domain"
)

// sseWriter writes SSE data frames to an echo response.
type sseWriter struct {
	c echo.Context
}

func startSSE(c echo.Context) *sseWriter {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
	return &sseWriter{c: c}
}

func (w *sseWriter) write(payload []byte) error {
	if _, err := w.c.Response().Write(domain.Frame(payload)); err != nil {
		return err
	}
	w.c.Response().Flush()
	return nil
}

// relay writes frames until the channel closes. After a write error the
// remaining frames are drained so the producer can finish.
func (w *sseWriter) relay(frames <-chan []byte) {
	failed := false
	for payload := range frames {
		if failed {
			continue
		}
		if err := w.write(payload); err != nil {
			failed = true
		}
	}
}
