package models

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// StrictDecimal is a decimal that only unmarshals from bare JSON numbers.
// TradingView users sometimes paste templated math like "{{close}} * 1.02"
// into alert bodies; those arrive as strings and must be rejected, not
// coerced.
type StrictDecimal struct {
	decimal.Decimal
}

// UnmarshalJSON rejects quoted and non-numeric values.
func (d *StrictDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' {
		return fmt.Errorf("value %s is not a plain number", data)
	}
	dec, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("value %s is not a plain number", data)
	}
	d.Decimal = dec
	return nil
}

// MarshalJSON emits the decimal as a bare number.
func (d StrictDecimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

// WebhookPayload is the inbound TradingView alert body. Numeric fields use
// StrictDecimal so templated expressions fail validation instead of being
// silently zeroed.
type WebhookPayload struct {
	Secret       string         `json:"secret"`
	AccountID    string         `json:"account_id,omitempty"`
	Symbol       string         `json:"symbol"`
	Action       string         `json:"action"`
	OrderType    string         `json:"order_type,omitempty"`
	Quantity     *StrictDecimal `json:"quantity,omitempty"`
	RiskPercent  *StrictDecimal `json:"risk_percent,omitempty"`
	Price        *StrictDecimal `json:"price,omitempty"`
	TakeProfit   *StrictDecimal `json:"take_profit,omitempty"`
	StopLoss     *StrictDecimal `json:"stop_loss,omitempty"`
	TrailingStop *StrictDecimal `json:"trailing_stop,omitempty"`
	Comment      string         `json:"comment,omitempty"`
}
