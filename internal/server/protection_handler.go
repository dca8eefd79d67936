package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type ProtectionHandler struct {
	state Protection
}

func NewProtectionHandler(state Protection) *ProtectionHandler {
	return &ProtectionHandler{state: state}
}

type protectionBody struct {
	Enabled *bool `json:"enabled"`
}

func (h *ProtectionHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"enabled": h.state.Enabled()})
}

// Put handles PUT /protection {"enabled": bool}
func (h *ProtectionHandler) Put(c echo.Context) error {
	var body protectionBody
	if err := c.Bind(&body); err != nil || body.Enabled == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "enabled is required",
		})
	}

	if err := h.state.Set(*body.Enabled); err != nil {
		// The flag has changed in memory even when persisting fails.
		log.Error().Err(err).Bool("enabled", *body.Enabled).Msg("failed to persist protection state")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":   "failed to persist protection state",
			"enabled": h.state.Enabled(),
		})
	}

	return c.JSON(http.StatusOK, map[string]bool{"enabled": h.state.Enabled()})
}
