package server

import (
	"net/http"

	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ClipboardHandler is the intercepted accessor: every read and write an actor
// makes through it is mediated before it reaches the clipboard.
type ClipboardHandler struct {
	guard Guard
}

func NewClipboardHandler(guard Guard) *ClipboardHandler {
	return &ClipboardHandler{guard: guard}
}

type clipboardResponse struct {
	Content clipboard.Content `json:"content"`
	Outcome mediation.Outcome `json:"outcome"`
}

// Read handles GET /clipboard. A denied read answers 403 with empty content.
func (h *ClipboardHandler) Read(c echo.Context) error {
	actorID, label := actor(c)
	content, out := h.guard.HandleRead(c.Request().Context(), actorID, label)

	status := http.StatusOK
	if !out.Allowed() {
		status = http.StatusForbidden
	}
	return c.JSON(status, clipboardResponse{Content: content, Outcome: out})
}

// Write handles PUT /clipboard {text|files}
func (h *ClipboardHandler) Write(c echo.Context) error {
	var body clipboard.Content
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if body.IsEmpty() {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "text or files is required",
		})
	}

	actorID, label := actor(c)
	out, err := h.guard.HandleWrite(c.Request().Context(), actorID, label, body)
	if err != nil {
		log.Error().Err(err).Str("actor", actorID).Msg("approved clipboard write failed")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":   "clipboard write failed",
			"outcome": out,
		})
	}
	if !out.Allowed() {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error":   "clipboard write denied",
			"outcome": out,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"outcome": out})
}

func actor(c echo.Context) (id, label string) {
	if p := auth.PrincipalFrom(c); p != nil {
		return p.Subject, p.Name
	}
	return "", ""
}
