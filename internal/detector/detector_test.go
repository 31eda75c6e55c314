package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/media"
)

type fakeInference struct {
	server       *httptest.Server
	healthCalls  atomic.Int32
	predictCalls atomic.Int32
	detections   []map[string]any
	healthStatus int
}

func newFakeInference(t *testing.T, detections []map[string]any) *fakeInference {
	t.Helper()
	f := &fakeInference{detections: detections, healthStatus: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			f.healthCalls.Add(1)
			w.WriteHeader(f.healthStatus)
		case "/predict":
			f.predictCalls.Add(1)
			assert.NoError(t, r.ParseMultipartForm(10<<20))
			assert.Equal(t, "0.25", r.FormValue("conf"))
			_, _, err := r.FormFile("file")
			assert.NoError(t, err)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"image_width":  100,
				"image_height": 100,
				"detections":   f.detections,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 100))))
	payload := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.png" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))
	return path
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestDetectNonRoadCategoryShortCircuits(t *testing.T) {
	inference := newFakeInference(t, nil)
	images := imageServer(t)
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, t.TempDir()))

	for _, category := range []string{"water", "Electricity", "roads", ""} {
		features := d.Detect(context.Background(), images.URL+"/img.png", category)
		assert.False(t, features.Active, category)
		assert.Equal(t, complaint.ReasonNotApplicableCategory, features.Reason, category)
	}
	assert.Zero(t, inference.healthCalls.Load())
	assert.Zero(t, inference.predictCalls.Load())
}

func TestDetectZeroDetections(t *testing.T) {
	inference := newFakeInference(t, []map[string]any{})
	images := imageServer(t)
	tmpDir := t.TempDir()
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, tmpDir))

	features := d.Detect(context.Background(), images.URL+"/img.png", "Road")

	assert.True(t, features.Active)
	assert.Equal(t, 0, features.NumDetections)
	assert.Equal(t, 0.0, features.DamageProportion)
	assert.Equal(t, 0.0, features.MeanConfidence)
	assert.Equal(t, complaint.HintLow, features.SeverityHint)
	assert.Equal(t, 10000.0, features.ImageArea)
	assert.Equal(t, 0, countFiles(t, tmpDir))
}

func TestDetectModelMissing(t *testing.T) {
	inference := newFakeInference(t, nil)
	images := imageServer(t)
	tmpDir := t.TempDir()
	missing := filepath.Join(t.TempDir(), "nothing.pt")
	d := New(Config{ModelPath: missing}, NewHTTPBackend(inference.server.URL, missing, 0), media.NewDownloader(0, tmpDir))

	features := d.Detect(context.Background(), images.URL+"/img.png", "road")

	assert.False(t, features.Active)
	assert.Equal(t, complaint.ReasonModelUnavailable, features.Reason)
	assert.ErrorIs(t, d.Ready(context.Background()), ErrModelUnavailable)
	assert.Zero(t, inference.predictCalls.Load())
	assert.Equal(t, 0, countFiles(t, tmpDir))
}

func TestDetectBackendUnhealthyLoadsOnce(t *testing.T) {
	inference := newFakeInference(t, nil)
	inference.healthStatus = http.StatusServiceUnavailable
	images := imageServer(t)
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, t.TempDir()))

	for i := 0; i < 3; i++ {
		features := d.Detect(context.Background(), images.URL+"/img.png", "road")
		assert.Equal(t, complaint.ReasonModelUnavailable, features.Reason)
	}
	assert.Equal(t, int32(1), inference.healthCalls.Load())
}

func TestReadyIgnoresCancelledFirstCaller(t *testing.T) {
	inference := newFakeInference(t, nil)
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Ready(ctx))
	require.NoError(t, d.Ready(context.Background()))
	assert.Equal(t, int32(1), inference.healthCalls.Load())
}

func TestDetectDownloadFailure(t *testing.T) {
	inference := newFakeInference(t, nil)
	images := imageServer(t)
	tmpDir := t.TempDir()
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, tmpDir))

	features := d.Detect(context.Background(), images.URL+"/broken.png", "road")

	assert.False(t, features.Active)
	assert.Equal(t, complaint.ReasonError, features.Reason)
	assert.Contains(t, features.Error, "500")
	assert.Zero(t, inference.predictCalls.Load())
	assert.Equal(t, 0, countFiles(t, tmpDir))
}

func TestDetectAggregatesBackendDetections(t *testing.T) {
	inference := newFakeInference(t, []map[string]any{
		{"class_id": 5, "confidence": 0.9, "bbox": []float64{0, 0, 10, 10}},
		{"class_id": 0, "confidence": 0.8, "bbox": []float64{10, 10, 20, 30}},
		{"class_id": 0, "confidence": 0.76, "bbox": []float64{50, 50, 60, 60}},
	})
	images := imageServer(t)
	tmpDir := t.TempDir()
	d := New(Config{ModelPath: modelFile(t)}, NewHTTPBackend(inference.server.URL, "best.pt", 0), media.NewDownloader(0, tmpDir))

	features := d.Detect(context.Background(), images.URL+"/img.png", "road")

	require.True(t, features.Active)
	assert.Equal(t, 3, features.NumDetections)
	assert.InDelta(t, 400.0, features.TotalDamageArea, 1e-9)
	assert.InDelta(t, 0.04, features.DamageProportion, 1e-9)
	assert.InDelta(t, 0.82, features.MeanConfidence, 1e-9)
	require.Len(t, features.ClassSummary, 2)
	assert.Equal(t, "D00", features.ClassSummary[0].ClassCode)
	assert.Equal(t, 2, features.ClassSummary[0].Count)
	assert.Equal(t, "D40", features.ClassSummary[1].ClassCode)
	assert.Equal(t, "Pothole", features.ClassSummary[1].Description)
	// count +1, proportion 0, confidence +1
	assert.Equal(t, complaint.HintModerate, features.SeverityHint)
	assert.Equal(t, 0, countFiles(t, tmpDir))
}

func TestSeverityHintTable(t *testing.T) {
	tests := []struct {
		count      int
		proportion float64
		confidence float64
		want       complaint.SeverityHint
	}{
		{0, 0, 0, complaint.HintLow},
		{1, 0.05, 0.8, complaint.HintLow},
		{2, 0, 0, complaint.HintLow},
		{2, 0.06, 0, complaint.HintModerate},
		{5, 0.06, 0, complaint.HintModerate},
		{5, 0.16, 0, complaint.HintHigh},
		{3, 0.15, 0.82, complaint.HintModerate},
		{10, 0, 0.81, complaint.HintHigh},
		{10, 0.31, 0, complaint.HintCritical},
		{5, 0.31, 0.9, complaint.HintCritical},
		{1, 0.31, 0.9, complaint.HintHigh},
	}

	for _, tt := range tests {
		got := SeverityHint(tt.count, tt.proportion, tt.confidence)
		assert.Equal(t, tt.want, got, "count=%d proportion=%v confidence=%v", tt.count, tt.proportion, tt.confidence)
	}
}

func TestAggregateIsOrderInvariant(t *testing.T) {
	raw := []RawDetection{
		{ClassID: 5, Confidence: 0.91, BBox: complaint.BoundingBox{X1: 0, Y1: 0, X2: 30, Y2: 40}},
		{ClassID: 0, Confidence: 0.67, BBox: complaint.BoundingBox{X1: 5, Y1: 5, X2: 15, Y2: 95}},
		{ClassID: 0, Confidence: 0.73, BBox: complaint.BoundingBox{X1: 40, Y1: 10, X2: 44, Y2: 90}},
		{ClassID: 4, Confidence: 0.55, BBox: complaint.BoundingBox{X1: 60, Y1: 60, X2: 99, Y2: 99}},
		{ClassID: 2, Confidence: 0.31, BBox: complaint.BoundingBox{X1: 1, Y1: 70, X2: 80, Y2: 75}},
		{ClassID: 42, Confidence: 0.44, BBox: complaint.BoundingBox{X1: 3, Y1: 3, X2: 9, Y2: 9}},
	}
	want := Aggregate(raw, 100, 100)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]RawDetection(nil), raw...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Aggregate(shuffled, 100, 100))
	}
}

func TestAggregateZeroImageArea(t *testing.T) {
	features := Aggregate([]RawDetection{{ClassID: 5, Confidence: 0.5, BBox: complaint.BoundingBox{X2: 10, Y2: 10}}}, 0, 0)
	assert.Equal(t, 0.0, features.DamageProportion)
	assert.Equal(t, 100.0, features.TotalDamageArea)
}

func TestClassFor(t *testing.T) {
	code, desc := ClassFor(4)
	assert.Equal(t, "D20", code)
	assert.Equal(t, "Alligator Crack", desc)

	code, _ = ClassFor(99)
	assert.Equal(t, UnknownClassCode, code)
}
