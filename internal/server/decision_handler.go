package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type DecisionHandler struct {
	channel *approval.Channel
	timeout time.Duration
}

func NewDecisionHandler(channel *approval.Channel, timeout time.Duration) *DecisionHandler {
	return &DecisionHandler{channel: channel, timeout: timeout}
}

// UI shape for a pending request card
type pendingRequest struct {
	approval.Request
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type decisionRequest struct {
	Verdict string `json:"verdict"`
}

// GetPending handles GET /pending
func (h *DecisionHandler) GetPending(c echo.Context) error {
	items := h.channel.Pending()

	resp := make([]pendingRequest, 0, len(items))
	for _, it := range items {
		p := pendingRequest{Request: it}
		if h.timeout > 0 {
			expiresAt := it.CreatedAt.Add(h.timeout)
			p.ExpiresAt = &expiresAt
		}
		resp = append(resp, p)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(resp),
		"pending": resp,
	})
}

// Decide handles POST /requests/:id/decision
func (h *DecisionHandler) Decide(c echo.Context) error {
	id := c.Param("id")

	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	verdict, err := approval.ParseVerdict(req.Verdict)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	if err := h.channel.Resolve(id, verdict); err != nil {
		if errors.Is(err, approval.ErrUnknownRequest) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "request not found or already resolved",
			})
		}
		log.Error().Err(err).Str("id", id).Msg("failed to resolve request")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to record decision",
		})
	}

	approver := ""
	if p := auth.PrincipalFrom(c); p != nil {
		approver = p.Subject
	}
	log.Info().
		Str("id", id).
		Str("verdict", string(verdict)).
		Str("approver", approver).
		Msg("decision recorded")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
		"verdict": verdict,
	})
}
