package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Signal actions accepted from TradingView alerts.
const (
	ActionBuy          = "buy"
	ActionSell         = "sell"
	ActionBuyLimit     = "buy_limit"
	ActionSellLimit    = "sell_limit"
	ActionBuyStop      = "buy_stop"
	ActionSellStop     = "sell_stop"
	ActionClose        = "close"
	ActionClosePartial = "close_partial"
	ActionModify       = "modify"
)

// Order types.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
	OrderTypeStop   = "stop"
)

// Signal lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusExecuted  = "executed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// ValidActions is the set of accepted signal actions.
var ValidActions = map[string]bool{
	ActionBuy:          true,
	ActionSell:         true,
	ActionBuyLimit:     true,
	ActionSellLimit:    true,
	ActionBuyStop:      true,
	ActionSellStop:     true,
	ActionClose:        true,
	ActionClosePartial: true,
	ActionModify:       true,
}

// signalTransitions lists the permitted status transitions. Terminal
// statuses have no outgoing edges.
var signalTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusSent:      true,
		StatusCancelled: true,
		StatusExpired:   true,
		StatusFailed:    true,
	},
	StatusSent: {
		StatusExecuted: true,
		StatusFailed:   true,
		StatusExpired:  true,
	},
}

// CanTransition reports whether a signal may move from one status to another.
func CanTransition(from, to string) bool {
	return signalTransitions[from][to]
}

// IsTerminalStatus reports whether a status has no outgoing transitions.
func IsTerminalStatus(status string) bool {
	return len(signalTransitions[status]) == 0
}

// IsOpeningAction reports whether the action opens a new position and
// therefore needs a lot size.
func IsOpeningAction(action string) bool {
	switch action {
	case ActionBuy, ActionSell, ActionBuyLimit, ActionSellLimit, ActionBuyStop, ActionSellStop:
		return true
	}
	return false
}

// IsPendingOrderAction reports whether the action places a limit or stop
// order, which requires an entry price.
func IsPendingOrderAction(action string) bool {
	switch action {
	case ActionBuyLimit, ActionSellLimit, ActionBuyStop, ActionSellStop:
		return true
	}
	return false
}

// IsBuySide reports whether the action opens a long position.
func IsBuySide(action string) bool {
	switch action {
	case ActionBuy, ActionBuyLimit, ActionBuyStop:
		return true
	}
	return false
}

// Signal is one normalized trade instruction derived from an inbound
// webhook alert. Signals are never deleted; terminal statuses keep the
// row for audit.
type Signal struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	UserID    string `json:"user_id" gorm:"size:36;not null;index"`
	AccountID string `json:"account_id" gorm:"size:36;not null;index:idx_signals_account_status,priority:1"`

	Symbol       string           `json:"symbol" gorm:"size:50;not null"`
	Action       string           `json:"action" gorm:"size:20;not null"`
	OrderType    string           `json:"order_type" gorm:"size:20;not null;default:market"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty" gorm:"type:decimal(10,4)"`
	Price        *decimal.Decimal `json:"price,omitempty" gorm:"type:decimal(20,8)"`
	TakeProfit   *decimal.Decimal `json:"take_profit,omitempty" gorm:"type:decimal(20,8)"`
	StopLoss     *decimal.Decimal `json:"stop_loss,omitempty" gorm:"type:decimal(20,8)"`
	TrailingStop *decimal.Decimal `json:"trailing_stop,omitempty" gorm:"type:decimal(10,2)"`
	Comment      string           `json:"comment,omitempty" gorm:"size:255"`

	Status string `json:"status" gorm:"size:20;not null;default:pending;index:idx_signals_account_status,priority:2"`
	Source string `json:"source" gorm:"size:50;not null;default:tradingview"`

	// IdempotencyKey deduplicates webhook retries. Unique when set.
	IdempotencyKey *string `json:"-" gorm:"size:64;uniqueIndex"`
	RawPayload     string  `json:"raw_payload,omitempty" gorm:"type:text"`

	// Execution report from the EA.
	BrokerTicket     *int64           `json:"broker_ticket,omitempty"`
	ExecutedPrice    *decimal.Decimal `json:"executed_price,omitempty" gorm:"type:decimal(20,8)"`
	ExecutedQuantity *decimal.Decimal `json:"executed_quantity,omitempty" gorm:"type:decimal(10,4)"`
	ErrorMessage     string           `json:"error_message,omitempty" gorm:"type:text"`

	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null;index"`
}

// BeforeCreate assigns a UUID primary key.
func (s *Signal) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the signal passed its expiry time.
func (s *Signal) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
