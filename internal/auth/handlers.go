package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Handler serves approver login. Users come from a string of the form
// NAME:PASSWORD:ROLES, semicolon-separated, e.g. "alice:s3cret:approver".
type Handler struct {
	manager *Manager
	users   string
}

func NewHandler(manager *Manager, users string) *Handler {
	return &Handler{manager: manager, users: users}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		log.Warn().Err(err).Str("remote_addr", c.Request().RemoteAddr).Msg("invalid login request body")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request",
		})
	}

	p, err := h.validateCredentials(req.Username, req.Password)
	if err != nil {
		log.Warn().Str("username", req.Username).Msg("login failed")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid credentials",
		})
	}

	token, err := h.manager.GenerateToken(*p)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to generate token",
		})
	}

	log.Info().Str("username", p.Subject).Msg("approver logged in")

	return c.JSON(http.StatusOK, LoginResponse{Token: token, Principal: *p})
}

func (h *Handler) Me(c echo.Context) error {
	p := PrincipalFrom(c)
	if p == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) validateCredentials(username, password string) (*Principal, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	for _, entry := range strings.Split(h.users, ";") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) < 3 {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(username), []byte(parts[0])) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(parts[1])) == 1 {
			return &Principal{
				Subject: username,
				Name:    username,
				Roles:   strings.Split(parts[2], ","),
			}, nil
		}
	}

	return nil, ErrInvalidCredentials
}
