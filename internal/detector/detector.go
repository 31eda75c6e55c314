// Package detector produces advisory road-damage features for complaint
// images. It never fails the caller: every problem is reported inside the
// returned record.
package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/media"
	"github.com/urbanfix/backend/pkg/logger"
)

const DefaultConfidenceThreshold = 0.25

var ErrModelUnavailable = errors.New("detector model unavailable")

// ImageFetcher downloads a complaint image into a scoped temp file.
type ImageFetcher interface {
	Download(ctx context.Context, imageURL string) (*media.TempFile, error)
}

type Config struct {
	ModelPath           string
	ConfidenceThreshold float64
	LoadTimeout         time.Duration
}

type Detector struct {
	cfg     Config
	backend Backend
	fetcher ImageFetcher

	loadOnce sync.Once
	loadErr  error
}

func New(cfg Config, backend Backend, fetcher ImageFetcher) *Detector {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Second
	}
	return &Detector{cfg: cfg, backend: backend, fetcher: fetcher}
}

// Ready loads the model on first use. Later calls return the cached outcome.
// The load outlives the first caller's context; only LoadTimeout bounds it.
func (d *Detector) Ready(ctx context.Context) error {
	d.loadOnce.Do(func() {
		d.loadErr = d.load(context.WithoutCancel(ctx))
		if d.loadErr != nil {
			logger.Warn("Detector model unavailable, continuing without detector",
				zap.String("model_path", d.cfg.ModelPath),
				zap.Error(d.loadErr),
			)
			return
		}
		logger.Info("Detector model loaded", zap.String("model_path", d.cfg.ModelPath))
	})
	return d.loadErr
}

func (d *Detector) load(ctx context.Context) error {
	if d.backend == nil {
		return fmt.Errorf("%w: no inference backend", ErrModelUnavailable)
	}
	if d.cfg.ModelPath == "" {
		return fmt.Errorf("%w: model path is empty", ErrModelUnavailable)
	}
	info, err := os.Stat(d.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelUnavailable, d.cfg.ModelPath)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.LoadTimeout)
	defer cancel()
	if err := d.backend.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

// Detect returns features for the image at imageURL. Non-road categories and
// an unavailable model short-circuit before any network call.
func (d *Detector) Detect(ctx context.Context, imageURL, category string) complaint.DetectorFeatures {
	if !complaint.IsRoadCategory(category) {
		return complaint.Inactive(complaint.ReasonNotApplicableCategory, "")
	}
	if err := d.Ready(ctx); err != nil {
		return complaint.Inactive(complaint.ReasonModelUnavailable, "")
	}

	features, err := d.run(ctx, imageURL)
	if err != nil {
		logger.Warn("Detector run failed", zap.String("image_url", imageURL), zap.Error(err))
		return complaint.Inactive(complaint.ReasonError, err.Error())
	}

	logger.Info("Detector completed",
		zap.Int("num_detections", features.NumDetections),
		zap.Float64("damage_proportion", features.DamageProportion),
		zap.String("severity_hint", string(features.SeverityHint)),
	)
	return features
}

func (d *Detector) run(ctx context.Context, imageURL string) (complaint.DetectorFeatures, error) {
	tmp, err := d.fetcher.Download(ctx, imageURL)
	if err != nil {
		return complaint.DetectorFeatures{}, err
	}
	defer tmp.Release()

	pred, err := d.backend.Predict(ctx, tmp.Path(), d.cfg.ConfidenceThreshold)
	if err != nil {
		return complaint.DetectorFeatures{}, err
	}

	width, height := pred.ImageWidth, pred.ImageHeight
	if width <= 0 || height <= 0 {
		width, height, err = media.Dimensions(tmp.Path())
		if err != nil {
			return complaint.DetectorFeatures{}, err
		}
	}

	return Aggregate(pred.Detections, width, height), nil
}
