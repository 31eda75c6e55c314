package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urbanfix/backend/internal/complaint"
)

// Prediction is the backend's answer for one image.
type Prediction struct {
	ImageWidth  int
	ImageHeight int
	Detections  []RawDetection
}

// Backend runs the road-damage model.
type Backend interface {
	Health(ctx context.Context) error
	Predict(ctx context.Context, imagePath string, confidence float64) (*Prediction, error)
}

// HTTPBackend talks to the inference service that serves the model artifact.
type HTTPBackend struct {
	endpoint   string
	modelPath  string
	httpClient *http.Client
}

func NewHTTPBackend(endpoint, modelPath string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		endpoint:   strings.TrimRight(endpoint, "/"),
		modelPath:  modelPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Health(ctx context.Context) error {
	if b.endpoint == "" {
		return fmt.Errorf("inference endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference backend health returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) Predict(ctx context.Context, imagePath string, confidence float64) (*Prediction, error) {
	body, contentType, err := b.encodeRequest(imagePath, confidence)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call inference backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference backend returned status %d", resp.StatusCode)
	}

	var payload struct {
		ImageWidth  int `json:"image_width"`
		ImageHeight int `json:"image_height"`
		Detections  []struct {
			ClassID    int       `json:"class_id"`
			Confidence float64   `json:"confidence"`
			BBox       []float64 `json:"bbox"`
		} `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}

	pred := &Prediction{
		ImageWidth:  payload.ImageWidth,
		ImageHeight: payload.ImageHeight,
		Detections:  make([]RawDetection, 0, len(payload.Detections)),
	}
	for _, d := range payload.Detections {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("inference response has malformed bbox with %d values", len(d.BBox))
		}
		pred.Detections = append(pred.Detections, RawDetection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			BBox:       complaint.BoundingBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]},
		})
	}
	return pred, nil
}

func (b *HTTPBackend) encodeRequest(imagePath string, confidence float64) (io.Reader, string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy image: %w", err)
	}
	if err := w.WriteField("conf", strconv.FormatFloat(confidence, 'f', -1, 64)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", b.modelPath); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
