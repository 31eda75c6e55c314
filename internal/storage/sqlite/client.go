package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/storage/models"
	"github.com/urbanfix/backend/pkg/logger"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateName = errors.New("department already exists")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		complaint_id TEXT NOT NULL,
		category TEXT,
		status TEXT NOT NULL,
		failed_stage TEXT,
		severity_score INTEGER,
		urgency_tier TEXT,
		estimated_hours INTEGER,
		estimated_days REAL,
		severity_json TEXT,
		time_json TEXT,
		metadata_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 1,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_complaint ON predictions(complaint_id);
	CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);

	CREATE TABLE IF NOT EXISTS department_suggestions (
		id TEXT PRIMARY KEY,
		department_name TEXT NOT NULL,
		department_id TEXT,
		confidence REAL NOT NULL,
		source TEXT,
		description TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_created ON department_suggestions(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDepartment(ctx context.Context, dept *models.Department) error {
	query := `INSERT INTO departments (id, name, name_key, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		dept.ID,
		dept.Name,
		strings.ToLower(strings.TrimSpace(dept.Name)),
		dept.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to insert department: %w", err)
	}

	logger.Debug("Department inserted", zap.String("department_id", dept.ID), zap.String("name", dept.Name))
	return nil
}

// SeedDepartments inserts names that are not yet present, matching names
// case-insensitively.
func (c *Client) SeedDepartments(ctx context.Context, depts []models.Department) error {
	query := `INSERT OR IGNORE INTO departments (id, name, name_key, created_at) VALUES (?, ?, ?, ?)`

	for _, d := range depts {
		if _, err := c.db.ExecContext(ctx, query, d.ID, d.Name, strings.ToLower(strings.TrimSpace(d.Name)), d.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to seed department %q: %w", d.Name, err)
		}
	}
	return nil
}

func (c *Client) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	depts := make([]models.Department, 0)
	for rows.Next() {
		var d models.Department
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		depts = append(depts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate departments: %w", err)
	}
	return depts, nil
}

func (c *Client) InsertPrediction(ctx context.Context, record *models.PredictionRecord) error {
	query := `
		INSERT INTO predictions (id, complaint_id, category, status, failed_stage, severity_score, urgency_tier,
			estimated_hours, estimated_days, severity_json, time_json, metadata_json, attempts, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.ComplaintID,
		record.Category,
		record.Status,
		record.FailedStage,
		record.SeverityScore,
		record.UrgencyTier,
		record.EstimatedHours,
		record.EstimatedDays,
		record.SeverityJSON,
		record.TimeJSON,
		record.MetadataJSON,
		record.Attempts,
		record.LatencyMS,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	logger.Info("Prediction recorded",
		zap.String("prediction_id", record.ID),
		zap.String("complaint_id", record.ComplaintID),
		zap.String("status", record.Status),
	)
	return nil
}

// LatestPrediction returns the most recent record for complaintID.
func (c *Client) LatestPrediction(ctx context.Context, complaintID string) (*models.PredictionRecord, error) {
	query := `
		SELECT id, complaint_id, category, status, failed_stage, severity_score, urgency_tier, estimated_hours,
			estimated_days, severity_json, time_json, metadata_json, attempts, latency_ms, created_at
		FROM predictions
		WHERE complaint_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var r models.PredictionRecord
	var createdAt int64
	err := c.db.QueryRowContext(ctx, query, complaintID).Scan(
		&r.ID,
		&r.ComplaintID,
		&r.Category,
		&r.Status,
		&r.FailedStage,
		&r.SeverityScore,
		&r.UrgencyTier,
		&r.EstimatedHours,
		&r.EstimatedDays,
		&r.SeverityJSON,
		&r.TimeJSON,
		&r.MetadataJSON,
		&r.Attempts,
		&r.LatencyMS,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

func (c *Client) InsertSuggestion(ctx context.Context, record *models.SuggestionRecord) error {
	query := `
		INSERT INTO department_suggestions (id, department_name, department_id, confidence, source, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.DepartmentName,
		record.DepartmentID,
		record.Confidence,
		record.Source,
		record.Description,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}
