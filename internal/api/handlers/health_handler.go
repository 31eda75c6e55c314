package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/pkg/logger"
)

// Check is one readiness dependency.
type Check func(ctx context.Context) error

// CircuitReporter returns a breaker state and its consecutive failures.
type CircuitReporter func() (state string, consecutiveFailures uint32)

type HealthHandler struct {
	checks   map[string]Check
	circuits map[string]CircuitReporter
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, circuits: make(map[string]CircuitReporter)}
}

// WithCircuit adds a breaker to the readiness report. An open breaker is
// reported but does not fail readiness since callers fall back.
func (h *HealthHandler) WithCircuit(name string, report CircuitReporter) *HealthHandler {
	h.circuits[name] = report
	return h
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports 503 when any dependency check fails. The detector is
// advisory and never listed here.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	results := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != fiber.StatusOK {
		state = "not_ready"
	}
	circuits := make(fiber.Map, len(h.circuits))
	for name, report := range h.circuits {
		cbState, failures := report()
		circuits[name] = fiber.Map{
			"state":                cbState,
			"consecutive_failures": failures,
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":   state,
		"checks":   results,
		"circuits": circuits,
	})
}
