package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// LoadConfig reads the listener settings. The guardian binds to loopback
// unless BIND_ADDR says otherwise.
func LoadConfig() Config {
	return Config{
		BindAddr:        getEnv("BIND_ADDR", "127.0.0.1"),
		Port:            getEnvInt("PORT", 8080),
		ReadTimeout:     getEnvInt("READ_TIMEOUT", 30),
		WriteTimeout:    getEnvInt("WRITE_TIMEOUT", 30),
		ShutdownTimeout: getEnvInt("SHUTDOWN_TIMEOUT", 10),
		AllowOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.Port))
}

// Validate refuses to expose the API beyond this machine while auth is off.
// Without auth any caller can name itself with X-Actor-ID and answer its own
// prompts.
func (c Config) Validate(requireAuth bool) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if !requireAuth && !isLoopback(c.BindAddr) {
		return fmt.Errorf("BIND_ADDR %q is not loopback; set REQUIRE_AUTH=true to listen on it", c.BindAddr)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
