package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets response hardening headers. The API serves JSON and
// a websocket, so the policy denies everything except connections back to
// itself and the configured origins.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := buildCSP(cfg.AllowedOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Set("Cross-Origin-Resource-Policy", "same-site")
		c.Set("Content-Security-Policy", csp)

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if strings.HasPrefix(c.Path(), "/api/") {
			c.Set("Cache-Control", "no-store")
		}

		return c.Next()
	}
}

func buildCSP(origins []string) string {
	connect := []string{"'self'"}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		connect = append(connect, origin)
	}

	return "default-src 'none'; " +
		"connect-src " + strings.Join(connect, " ") + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'none'; " +
		"form-action 'none'"
}
