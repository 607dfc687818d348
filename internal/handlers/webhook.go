package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/metrics"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/mtbridge/signal-bridge/internal/services"
	"go.uber.org/zap"
)

// WebhookHandler receives TradingView alert webhooks.
type WebhookHandler struct {
	ingest *services.IngestService
	log    *zap.SugaredLogger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingest *services.IngestService, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{ingest: ingest, log: log}
}

// HandleTradingView ingests one alert. TradingView posts the JSON body
// as text/plain, so the body is read raw and decoded manually rather
// than via content-type negotiation.
func (h *WebhookHandler) HandleTradingView(c *gin.Context) {
	start := time.Now()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("failed to read request body")))
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Strict numeric decoding fails here for templated values like
		// "{{close}} * 1.02".
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid payload: %v", err)))
		return
	}

	if payload.Secret == "" {
		metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, relay.Body(relay.Authentication()))
		return
	}

	result, err := h.ingest.ProcessWebhook(c.Request.Context(), &payload, body)
	if err != nil {
		status := relay.HTTPStatus(err)
		if status == http.StatusUnauthorized {
			metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		} else {
			metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		}
		if status == http.StatusInternalServerError {
			h.log.Errorw("webhook processing failed", "error", err)
		}
		c.JSON(status, relay.Body(err))
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if len(result.SignalIDs) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":         false,
			"message":         "no active accounts found to receive signal",
			"signals_created": 0,
		})
		return
	}

	resp := gin.H{
		"success":         true,
		"message":         "signal queued",
		"signals_created": result.Created,
	}
	if len(result.SignalIDs) == 1 {
		resp["signal_id"] = result.SignalIDs[0]
	} else {
		resp["signal_ids"] = result.SignalIDs
	}
	c.JSON(http.StatusOK, resp)
}
