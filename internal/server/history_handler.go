package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type HistoryHandler struct {
	history HistoryReader
}

func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// GetHistory handles GET /history?limit=N
func (h *HistoryHandler) GetHistory(c echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		log.Error().Err(err).Str("remote_addr", c.Request().RemoteAddr).Msg("failed to retrieve history")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve history",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(entries),
		"entries": entries,
	})
}
