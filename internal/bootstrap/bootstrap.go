// Package bootstrap wires the analysis components from configuration. Both
// the API server and the queue worker start from Build.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/cache/redis"
	"github.com/urbanfix/backend/internal/department"
	"github.com/urbanfix/backend/internal/detector"
	"github.com/urbanfix/backend/internal/llm"
	"github.com/urbanfix/backend/internal/media"
	"github.com/urbanfix/backend/internal/pipeline"
	"github.com/urbanfix/backend/internal/prediction"
	"github.com/urbanfix/backend/internal/severity"
	"github.com/urbanfix/backend/internal/storage/models"
	"github.com/urbanfix/backend/internal/storage/sqlite"
	"github.com/urbanfix/backend/internal/timepredict"
	"github.com/urbanfix/backend/internal/weather"
	"github.com/urbanfix/backend/pkg/config"
	"github.com/urbanfix/backend/pkg/logger"
)

type Components struct {
	SQLite      *sqlite.Client
	Redis       *redis.Client
	LLM         *llm.Client
	Detector    *detector.Detector
	Predictions *prediction.Service
	Suggester   *department.Suggester
}

func Build(cfg *config.Config) (*Components, error) {
	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	c := &Components{SQLite: db}

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: seconds(cfg.LLM.TimeoutSec),
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("severity and time prediction need an LLM: %w", err)
	}
	c.LLM = llmClient

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, weather cache disabled", zap.Error(err))
		} else {
			c.Redis = rc
		}
	}

	c.Detector = detector.New(
		detector.Config{
			ModelPath:           cfg.Detector.ModelPath,
			ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
			LoadTimeout:         seconds(cfg.Detector.TimeoutSec),
		},
		detector.NewHTTPBackend(cfg.Detector.Endpoint, cfg.Detector.ModelPath, seconds(cfg.Detector.TimeoutSec)),
		media.NewDownloader(seconds(cfg.Detector.TimeoutSec), ""),
	)

	analyzer, err := severity.NewAnalyzer(llmClient)
	if err != nil {
		c.Close()
		return nil, err
	}
	predictor, err := timepredict.NewPredictor(llmClient)
	if err != nil {
		c.Close()
		return nil, err
	}

	var provider weather.Provider = weather.NewClient(weather.Config{
		BaseURL: cfg.Weather.BaseURL,
		APIKey:  cfg.Weather.APIKey,
		Days:    cfg.Weather.Days,
		Timeout: seconds(cfg.Weather.TimeoutSec),
	})
	if c.Redis != nil {
		provider = weather.NewCachedProvider(provider, c.Redis, seconds(cfg.Weather.CacheTTLSec))
	}

	orchestrator, err := pipeline.NewOrchestrator(c.Detector, analyzer, provider, predictor)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Predictions, err = prediction.NewService(orchestrator, db, prediction.Config{MaxAttempts: cfg.Pipeline.MaxAttempts})
	if err != nil {
		c.Close()
		return nil, err
	}

	classifier, err := department.NewImageClassifier(llmClient, "")
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Suggester = department.NewSuggester(classifier)

	return c, nil
}

// SeedDepartments makes sure the built-in departments exist in the catalog.
func (c *Components) SeedDepartments(ctx context.Context) error {
	now := time.Now()
	depts := make([]models.Department, 0, len(department.BuiltinDepartments))
	for _, name := range department.BuiltinDepartments {
		depts = append(depts, models.Department{ID: uuid.New().String(), Name: name, CreatedAt: now})
	}
	return c.SQLite.SeedDepartments(ctx, depts)
}

func (c *Components) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			logger.Warn("Failed to close SQLite client", zap.Error(err))
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
