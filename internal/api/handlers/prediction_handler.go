package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/pipeline"
	"github.com/urbanfix/backend/internal/prediction"
	"github.com/urbanfix/backend/internal/storage/models"
	"github.com/urbanfix/backend/internal/storage/sqlite"
	"github.com/urbanfix/backend/pkg/logger"
)

type PredictionService interface {
	Analyze(ctx context.Context, c complaint.Complaint) (pipeline.Result, error)
	Latest(ctx context.Context, complaintID string) (*models.PredictionRecord, error)
}

type PredictionHandler struct {
	service PredictionService
}

func NewPredictionHandler(service PredictionService) *PredictionHandler {
	return &PredictionHandler{
		service: service,
	}
}

func (h *PredictionHandler) CreatePrediction(c *fiber.Ctx) error {
	var req complaint.Complaint
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req = trimComplaint(req)

	result, err := h.service.Analyze(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, prediction.ErrInvalidComplaint) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		logger.Error("Prediction failed", zap.String("complaint_id", req.ComplaintID), zap.Error(err))
		body := fiber.Map{
			"error":    err.Error(),
			"metadata": result.Metadata,
		}
		if stage, ok := pipeline.StageOf(err); ok {
			body["stage"] = stage
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}

	return c.JSON(result)
}

func (h *PredictionHandler) GetPrediction(c *fiber.Ctx) error {
	complaintID := c.Params("complaintID")
	if complaintID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Complaint ID is required",
		})
	}

	record, err := h.service.Latest(c.UserContext(), complaintID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No prediction found for complaint",
		})
	}
	if err != nil {
		logger.Error("Failed to load prediction", zap.String("complaint_id", complaintID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load prediction",
		})
	}

	return c.JSON(fiber.Map{
		"id":              record.ID,
		"complaint_id":    record.ComplaintID,
		"category":        record.Category,
		"status":          record.Status,
		"failed_stage":    record.FailedStage,
		"attempts":        record.Attempts,
		"latency_ms":      record.LatencyMS,
		"created_at":      record.CreatedAt.Unix(),
		"severity":        rawJSON(record.SeverityJSON),
		"time_prediction": rawJSON(record.TimeJSON),
		"metadata":        rawJSON(record.MetadataJSON),
	})
}

// rawJSON embeds a stored JSON column as-is; empty columns render as null.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

func trimComplaint(c complaint.Complaint) complaint.Complaint {
	c.ComplaintID = strings.TrimSpace(c.ComplaintID)
	c.Category = strings.TrimSpace(c.Category)
	c.Description = strings.TrimSpace(c.Description)
	c.Address = strings.TrimSpace(c.Address)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	return c
}
