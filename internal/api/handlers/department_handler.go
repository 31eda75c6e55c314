package handlers

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/storage/models"
	"github.com/urbanfix/backend/internal/storage/sqlite"
	"github.com/urbanfix/backend/pkg/logger"
)

type DepartmentSuggester interface {
	Suggest(ctx context.Context, image io.Reader, description string, catalog []complaint.CatalogEntry) complaint.DepartmentSuggestion
}

type DepartmentStore interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	InsertDepartment(ctx context.Context, dept *models.Department) error
	InsertSuggestion(ctx context.Context, record *models.SuggestionRecord) error
}

type DepartmentHandler struct {
	suggester DepartmentSuggester
	store     DepartmentStore
}

func NewDepartmentHandler(suggester DepartmentSuggester, store DepartmentStore) *DepartmentHandler {
	return &DepartmentHandler{
		suggester: suggester,
		store:     store,
	}
}

// Suggest accepts a multipart form with an optional "image" file and a
// "description" field.
func (h *DepartmentHandler) Suggest(c *fiber.Ctx) error {
	ctx := c.UserContext()
	description := strings.TrimSpace(c.FormValue("description"))

	var image io.Reader
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			logger.Error("Failed to open uploaded image", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid image upload",
			})
		}
		defer f.Close()
		image = f
	}

	if image == nil && description == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "An image or a description is required",
		})
	}

	depts, err := h.store.ListDepartments(ctx)
	if err != nil {
		// An empty catalog falls back to the built-in department list.
		logger.Warn("Failed to load department catalog", zap.Error(err))
	}

	suggestion := h.suggester.Suggest(ctx, image, description, toCatalog(depts))

	record := &models.SuggestionRecord{
		ID:             uuid.New().String(),
		DepartmentName: suggestion.DepartmentName,
		DepartmentID:   suggestion.DepartmentID,
		Confidence:     suggestion.Confidence,
		Source:         suggestion.Source,
		Description:    description,
		CreatedAt:      time.Now(),
	}
	if err := h.store.InsertSuggestion(ctx, record); err != nil {
		logger.Warn("Failed to record department suggestion", zap.Error(err))
	}

	return c.JSON(suggestion)
}

func (h *DepartmentHandler) ListDepartments(c *fiber.Ctx) error {
	depts, err := h.store.ListDepartments(c.UserContext())
	if err != nil {
		logger.Error("Failed to list departments", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list departments",
		})
	}

	return c.JSON(fiber.Map{
		"departments": toCatalog(depts),
		"count":       len(depts),
	})
}

func (h *DepartmentHandler) CreateDepartment(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Department name is required",
		})
	}

	dept := &models.Department{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	err := h.store.InsertDepartment(c.UserContext(), dept)
	if errors.Is(err, sqlite.ErrDuplicateName) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Department already exists",
		})
	}
	if err != nil {
		logger.Error("Failed to create department", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create department",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(complaint.CatalogEntry{ID: dept.ID, Name: dept.Name})
}

func toCatalog(depts []models.Department) []complaint.CatalogEntry {
	catalog := make([]complaint.CatalogEntry, 0, len(depts))
	for _, d := range depts {
		catalog = append(catalog, complaint.CatalogEntry{ID: d.ID, Name: d.Name})
	}
	return catalog
}
