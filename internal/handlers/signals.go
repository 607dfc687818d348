package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/middleware"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/mtbridge/signal-bridge/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SignalHandler serves the read/cancel/export API consumed by the web UI.
type SignalHandler struct {
	queue *services.QueueService
	log   *zap.SugaredLogger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(queue *services.QueueService, log *zap.SugaredLogger) *SignalHandler {
	return &SignalHandler{queue: queue, log: log}
}

func parseSignalFilter(c *gin.Context) (services.SignalFilter, error) {
	filter := services.SignalFilter{
		AccountID: c.Query("account_id"),
		Status:    c.Query("status"),
		Symbol:    c.Query("symbol"),
	}
	if raw := c.Query("from_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, relay.Validation("from_date must be RFC3339")
		}
		filter.From = &t
	}
	if raw := c.Query("to_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, relay.Validation("to_date must be RFC3339")
		}
		filter.To = &t
	}
	return filter, nil
}

// ListSignals returns a filtered, paginated signal log for the user.
func (h *SignalHandler) ListSignals(c *gin.Context) {
	filter, err := parseSignalFilter(c)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	signals, total, err := h.queue.ListSignals(c.Request.Context(), middleware.UserID(c), filter, page, perPage)
	if err != nil {
		h.log.Errorw("failed to list signals", "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals":  signals,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// GetSignal returns one signal owned by the user.
func (h *SignalHandler) GetSignal(c *gin.Context) {
	signal, err := h.queue.GetSignal(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, signal)
}

// CancelSignal cancels a signal that is still pending.
func (h *SignalHandler) CancelSignal(c *gin.Context) {
	err := h.queue.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportSignals streams the filtered signal log as CSV.
func (h *SignalHandler) ExportSignals(c *gin.Context) {
	filter, err := parseSignalFilter(c)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	signals, _, err := h.queue.ListSignals(c.Request.Context(), middleware.UserID(c), filter, 1, 100)
	// Export pages through the full result set.
	var all []models.Signal
	page := 1
	for err == nil && len(signals) > 0 {
		all = append(all, signals...)
		if len(signals) < 100 || len(all) >= 10000 {
			break
		}
		page++
		signals, _, err = h.queue.ListSignals(c.Request.Context(), middleware.UserID(c), filter, page, 100)
	}
	if err != nil {
		h.log.Errorw("failed to export signals", "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}

	filename := fmt.Sprintf("signals_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{
		"ID", "Symbol", "Action", "Order Type", "Quantity", "Price",
		"Take Profit", "Stop Loss", "Trailing Stop", "Status", "Comment",
		"Created At", "Resolved At", "Error Message",
	})
	for i := range all {
		s := &all[i]
		_ = w.Write([]string{
			s.ID, s.Symbol, s.Action, s.OrderType,
			decimalField(s.Quantity), decimalField(s.Price),
			decimalField(s.TakeProfit), decimalField(s.StopLoss),
			decimalField(s.TrailingStop), s.Status, s.Comment,
			s.CreatedAt.UTC().Format(time.RFC3339), timeField(s.ResolvedAt),
			strings.ReplaceAll(s.ErrorMessage, "\n", " "),
		})
	}
	w.Flush()
}

func decimalField(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func timeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
