package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/mtbridge/signal-bridge/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DeliveryHandler serves the EA polling contract: fetch pending signals
// and report execution results.
type DeliveryHandler struct {
	users  *services.UserService
	queue  *services.QueueService
	notify *services.NotifyService
	log    *zap.SugaredLogger
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(users *services.UserService, queue *services.QueueService, notify *services.NotifyService, log *zap.SugaredLogger) *DeliveryHandler {
	return &DeliveryHandler{users: users, queue: queue, notify: notify, log: log}
}

// pendingSignal is the wire shape the EA consumes.
type pendingSignal struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Action       string           `json:"action"`
	OrderType    string           `json:"order_type"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	TakeProfit   *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss     *decimal.Decimal `json:"stop_loss,omitempty"`
	TrailingStop *decimal.Decimal `json:"trailing_stop,omitempty"`
	Comment      string           `json:"comment,omitempty"`
}

// authenticate resolves the account from the api_key query parameter and
// records any balance/equity the EA piggybacks on the request.
func (h *DeliveryHandler) authenticate(c *gin.Context) (*models.Account, bool) {
	apiKey := c.Query("api_key")
	if apiKey == "" {
		apiKey = c.GetHeader("X-API-Key")
	}
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, relay.Body(relay.Authentication()))
		return nil, false
	}

	account, err := h.users.GetAccountByAPIKey(c.Request.Context(), apiKey)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return nil, false
	}

	balance, ok := parseDecimalQuery(c, "balance")
	if !ok {
		return nil, false
	}
	equity, ok := parseDecimalQuery(c, "equity")
	if !ok {
		return nil, false
	}
	if err := h.users.RecordAccountTelemetry(c.Request.Context(), account, balance, equity); err != nil {
		h.log.Warnw("failed to record telemetry", "account_id", account.ID, "error", err)
	}

	return account, true
}

// GetPendingSignals claims the account's deliverable signals. Each
// signal is returned to exactly one poll, in creation order.
func (h *DeliveryHandler) GetPendingSignals(c *gin.Context) {
	account, ok := h.authenticate(c)
	if !ok {
		return
	}

	claimed, err := h.queue.ClaimPending(c.Request.Context(), account.ID, 0)
	if err != nil {
		h.log.Errorw("failed to claim pending signals", "account_id", account.ID, "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}

	signals := make([]pendingSignal, 0, len(claimed))
	for i := range claimed {
		s := &claimed[i]
		signals = append(signals, pendingSignal{
			ID:           s.ID,
			Symbol:       s.Symbol,
			Action:       s.Action,
			OrderType:    s.OrderType,
			Quantity:     s.Quantity,
			Price:        s.Price,
			TakeProfit:   s.TakeProfit,
			StopLoss:     s.StopLoss,
			TrailingStop: s.TrailingStop,
			Comment:      s.Comment,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"signals":     signals,
		"server_time": time.Now().UTC(),
	})
}

// ReportResult closes a signal's lifecycle with the EA's outcome.
func (h *DeliveryHandler) ReportResult(c *gin.Context) {
	account, ok := h.authenticate(c)
	if !ok {
		return
	}

	var report services.ResultReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid result body: %v", err)))
		return
	}

	signal, err := h.queue.Report(c.Request.Context(), c.Param("id"), account.ID, report)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	if report.Balance != nil || report.Equity != nil {
		if err := h.users.RecordAccountTelemetry(c.Request.Context(), account, report.Balance, report.Equity); err != nil {
			h.log.Warnw("failed to record telemetry", "account_id", account.ID, "error", err)
		}
	}
	h.notify.SignalResolved(signal)

	c.JSON(http.StatusOK, signal)
}

// parseDecimalQuery reads an optional decimal query parameter, rejecting
// the request on malformed values.
func parseDecimalQuery(c *gin.Context, name string) (*decimal.Decimal, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("%s must be a number", name)))
		return nil, false
	}
	return &d, true
}
