package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	complaintIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
	xssPattern         = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxDescriptionLength int
	MaxAddressLength     int
	MaxNameLength        int
	AllowedContentTypes  []string
	Logger               *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxDescriptionLength == 0 {
		cfg.MaxDescriptionLength = 5000
	}
	if cfg.MaxAddressLength == 0 {
		cfg.MaxAddressLength = 500
	}
	if cfg.MaxNameLength == 0 {
		cfg.MaxNameLength = 100
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

type complaintPayload struct {
	ComplaintID string `json:"complaint_id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Address     string `json:"address"`
	ImageURL    string `json:"image_url"`
}

func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		if !allowedContentType(c.Get(fiber.HeaderContentType), cfg.AllowedContentTypes) {
			return reject(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
		}

		switch strings.TrimSuffix(c.Path(), "/") {
		case "/api/v1/predictions":
			var req complaintPayload
			if err := c.BodyParser(&req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			if containsXSS(req.Description) || containsXSS(req.Address) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("complaint_id", req.ComplaintID),
				)
				return reject(c, fiber.StatusBadRequest, "Invalid complaint content")
			}
			if msg := validateComplaint(req, cfg); msg != "" {
				return reject(c, fiber.StatusBadRequest, msg)
			}

		case "/api/v1/departments":
			var req struct {
				Name string `json:"name"`
			}
			if err := c.BodyParser(&req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			if len(req.Name) > cfg.MaxNameLength || containsXSS(req.Name) {
				return reject(c, fiber.StatusBadRequest, "Invalid department name")
			}

		case "/api/v1/departments/suggest":
			description := c.FormValue("description")
			if len(description) > cfg.MaxDescriptionLength {
				return reject(c, fiber.StatusBadRequest, "Description exceeds maximum length")
			}
			if containsXSS(description) {
				return reject(c, fiber.StatusBadRequest, "Invalid description content")
			}
		}

		return c.Next()
	}
}

// validateComplaint returns a client-facing message, or "" when req is acceptable.
func validateComplaint(req complaintPayload, cfg Config) string {
	id := strings.TrimSpace(req.ComplaintID)
	switch {
	case id == "":
		return "complaint_id is required"
	case len(id) > 128 || !complaintIDPattern.MatchString(id):
		return "complaint_id is malformed"
	case strings.TrimSpace(req.Category) == "":
		return "category is required"
	case len(req.Category) > 64:
		return "category exceeds maximum length"
	case !isValidURL(strings.TrimSpace(req.ImageURL)):
		return "image_url must be an absolute http(s) URL"
	case len(req.Description) > cfg.MaxDescriptionLength:
		return "description exceeds maximum length"
	case len(req.Address) > cfg.MaxAddressLength:
		return "address exceeds maximum length"
	}
	return ""
}

func allowedContentType(contentType string, allowed []string) bool {
	if contentType == "" {
		return true
	}
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
