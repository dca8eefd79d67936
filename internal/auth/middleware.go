package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	RoleApprover = "approver"
	RoleActor    = "actor"

	// ActorHeader identifies the calling actor when authentication is off.
	ActorHeader = "X-Actor-ID"
	// ActorLabelHeader carries a human-readable name for the actor.
	ActorLabelHeader = "X-Actor-Label"

	contextKey = "principal"
	issuer     = "clipguard"
)

// Principal is the authenticated caller. For actors Subject is the actor id
// used for mediation and caching.
type Principal struct {
	Subject string   `json:"sub"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
}

func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type Config struct {
	JWTSecret       string
	TokenExpiration time.Duration
	RequireAuth     bool
}

type Manager struct {
	config Config
	secret []byte
}

func NewManager(config Config) *Manager {
	secret := config.JWTSecret
	if secret == "" {
		b := make([]byte, 32)
		_, _ = rand.Read(b)
		secret = base64.StdEncoding.EncodeToString(b)
		if config.RequireAuth {
			log.Warn().Msg("using generated JWT secret, tokens will not survive a restart; set JWT_SECRET")
		}
	}
	if config.TokenExpiration <= 0 {
		config.TokenExpiration = 24 * time.Hour
	}

	return &Manager{
		config: config,
		secret: []byte(secret),
	}
}

func (m *Manager) RequireAuth() bool {
	return m.config.RequireAuth
}

// Middleware attaches a Principal to every request. With auth disabled the
// caller is trusted with both roles and named by the X-Actor-ID header.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.config.RequireAuth {
				c.Set(contextKey, &Principal{
					Subject: strings.TrimSpace(c.Request().Header.Get(ActorHeader)),
					Name:    strings.TrimSpace(c.Request().Header.Get(ActorLabelHeader)),
					Roles:   []string{RoleApprover, RoleActor},
				})
				return next(c)
			}

			switch c.Path() {
			case "/health", "/login", "/metrics":
				return next(c)
			}

			token, err := bearerToken(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
			}

			p, err := m.ValidateToken(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": fmt.Sprintf("Invalid token: %v", err),
				})
			}

			c.Set(contextKey, p)
			return next(c)
		}
	}
}

// RequireRole rejects callers without role.
func (m *Manager) RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Authentication required",
				})
			}
			if !p.HasRole(role) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": fmt.Sprintf("Role '%s' required", role),
				})
			}
			return next(c)
		}
	}
}

func (m *Manager) GenerateToken(p Principal) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:  p.Name,
		Roles: p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Principal{Subject: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}

func PrincipalFrom(c echo.Context) *Principal {
	if p, ok := c.Get(contextKey).(*Principal); ok {
		return p
	}
	return nil
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter that browsers use for websocket upgrades.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		if q := c.QueryParam("token"); q != "" {
			return q, nil
		}
		return "", errors.New("Missing authorization header")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}
