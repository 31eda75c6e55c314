package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/pipeline"
	"github.com/urbanfix/backend/pkg/logger"
)

type PredictionStreamer interface {
	Stream(ctx context.Context, c complaint.Complaint, observe pipeline.StepObserver) (pipeline.Result, error)
}

type jsonWriter interface {
	WriteJSON(v interface{}) error
}

type streamRequest struct {
	Type      string              `json:"type"`
	Complaint complaint.Complaint `json:"complaint"`
}

// WebSocketHandler streams pipeline steps to the client as they complete.
type WebSocketHandler struct {
	streamer PredictionStreamer
}

func NewWebSocketHandler(streamer PredictionStreamer) *WebSocketHandler {
	return &WebSocketHandler{
		streamer: streamer,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg streamRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if err := h.handleMessage(context.Background(), c, msg); err != nil {
			logger.Error("Failed to stream prediction", zap.Error(err))
			break
		}
	}
}

// handleMessage returns an error only when the connection can no longer be
// written to.
func (h *WebSocketHandler) handleMessage(ctx context.Context, w jsonWriter, msg streamRequest) error {
	if msg.Type != "predict" {
		return h.sendError(w, "Unsupported message type", "", nil)
	}

	req := trimComplaint(msg.Complaint)
	logger.Info("Processing WebSocket prediction", zap.String("complaint_id", req.ComplaintID))

	var writeErr error
	result, err := h.streamer.Stream(ctx, req, func(step complaint.PipelineStep) {
		if writeErr != nil {
			return
		}
		writeErr = w.WriteJSON(map[string]interface{}{
			"type": "step",
			"step": step,
		})
	})
	if writeErr != nil {
		return writeErr
	}

	if err != nil {
		stage, _ := pipeline.StageOf(err)
		return h.sendError(w, err.Error(), stage, &result.Metadata)
	}

	return w.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": result,
	})
}

func (h *WebSocketHandler) sendError(w jsonWriter, errorMsg string, stage complaint.StepName, meta *complaint.PipelineMetadata) error {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}
	if stage != "" {
		msg["stage"] = stage
	}
	if meta != nil {
		msg["metadata"] = meta
	}

	return w.WriteJSON(msg)
}
