package handler

import (
	"context"
	"net/http"
	"time"

	"browsepulse/internal/middleware"
	"browsepulse/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventWriter is the slice of the event store the handler needs.
type EventWriter interface {
	InsertBatch(ctx context.Context, events []models.StoredEvent) error
}

// TrackingHandler ingests event batches for the authenticated caller.
type TrackingHandler struct {
	events EventWriter
	logger *zap.Logger
}

// NewTrackingHandler creates the handler.
func NewTrackingHandler(events EventWriter, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{
		events: events,
		logger: logger,
	}
}

// PostEvents handles POST /api/tracking/events. Every event gets a
// server-assigned id and timestamp; identical content from a retried client
// batch is stored again, the queue on the device is the dedup boundary.
func (h *TrackingHandler) PostEvents(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req models.BatchUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	clientTS := time.Now()
	if req.BatchTimestamp > 0 {
		clientTS = time.UnixMilli(req.BatchTimestamp)
	}

	now := time.Now()
	stored := make([]models.StoredEvent, 0, len(req.Events))
	for _, event := range req.Events {
		if !models.ValidEventType(event.Type) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + event.Type})
			return
		}
		stored = append(stored, models.StoredEvent{
			EventID:  uuid.New().String(),
			UserID:   userID,
			DeviceID: req.DeviceID,
			Event:    event,
			ClientTS: clientTS,
			ServerTS: now,
		})
	}

	if err := h.events.InsertBatch(c.Request.Context(), stored); err != nil {
		h.logger.Error("Failed to persist event batch",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.Int("event_count", len(stored)),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store events"})
		return
	}

	c.JSON(http.StatusAccepted, models.BatchUploadResponse{Accepted: len(stored)})
}
