package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MetaTrader platforms.
const (
	PlatformMT4 = "mt4"
	PlatformMT5 = "mt5"
)

// Account represents an MT4/MT5 trading account owned by one user. The
// EA authenticates with a per-account API key, stored hashed; the raw
// key is shown only once at creation or regeneration.
type Account struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	UserID        string `json:"user_id" gorm:"size:36;not null;index"`
	Name          string `json:"name" gorm:"size:255;not null"`
	Broker        string `json:"broker,omitempty" gorm:"size:255"`
	AccountNumber string `json:"account_number,omitempty" gorm:"size:50"`
	Platform      string `json:"platform" gorm:"size:10;not null"`
	APIKeyHash    string `json:"-" gorm:"size:64;uniqueIndex;not null"`
	IsActive      bool   `json:"is_active" gorm:"default:true"`

	// Guardrails consulted by the risk resolver.
	MaxLotSize           decimal.Decimal `json:"max_lot_size" gorm:"type:decimal(10,4);default:10"`
	SymbolWhitelist      string          `json:"symbol_whitelist,omitempty" gorm:"size:1024"`
	DrawdownLimitPercent decimal.Decimal `json:"drawdown_limit_percent" gorm:"type:decimal(5,2);default:0"`

	// Balance cache, stamped only by EA polls and result reports. Never
	// treated as fresh: BalanceUpdatedAt is checked before risk sizing.
	LastBalance      *decimal.Decimal `json:"last_balance,omitempty" gorm:"type:decimal(20,2)"`
	LastEquity       *decimal.Decimal `json:"last_equity,omitempty" gorm:"type:decimal(20,2)"`
	DayStartBalance  *decimal.Decimal `json:"day_start_balance,omitempty" gorm:"type:decimal(20,2)"`
	BalanceUpdatedAt *time.Time       `json:"balance_updated_at,omitempty"`

	SignalTTLSeconds int        `json:"signal_ttl_seconds,omitempty"`
	LastConnectedAt  *time.Time `json:"last_connected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Signals        []Signal        `json:"signals,omitempty" gorm:"foreignKey:AccountID"`
	SymbolMappings []SymbolMapping `json:"symbol_mappings,omitempty" gorm:"foreignKey:AccountID"`
}

// BeforeCreate assigns a UUID primary key.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// WhitelistedSymbols parses the comma-separated whitelist. An empty
// whitelist means all symbols are allowed.
func (a *Account) WhitelistedSymbols() []string {
	if strings.TrimSpace(a.SymbolWhitelist) == "" {
		return nil
	}
	parts := strings.Split(a.SymbolWhitelist, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	return symbols
}

// AllowsSymbol reports whether the whitelist permits trading the symbol.
func (a *Account) AllowsSymbol(symbol string) bool {
	whitelist := a.WhitelistedSymbols()
	if len(whitelist) == 0 {
		return true
	}
	upper := strings.ToUpper(symbol)
	for _, s := range whitelist {
		if s == upper {
			return true
		}
	}
	return false
}

// SymbolMapping translates a TradingView ticker to the symbol the broker
// terminal recognizes, with an optional lot multiplier. Unique per
// (account, tradingview symbol).
type SymbolMapping struct {
	ID                string          `json:"id" gorm:"primaryKey;size:36"`
	AccountID         string          `json:"account_id" gorm:"size:36;not null;uniqueIndex:uq_account_tv_symbol,priority:1"`
	TradingViewSymbol string          `json:"tradingview_symbol" gorm:"column:tradingview_symbol;size:50;not null;uniqueIndex:uq_account_tv_symbol,priority:2"`
	MTSymbol          string          `json:"mt_symbol" gorm:"size:50;not null"`
	LotMultiplier     decimal.Decimal `json:"lot_multiplier" gorm:"type:decimal(10,4);default:1"`
	CreatedAt         time.Time       `json:"created_at"`
}

// BeforeCreate assigns a UUID primary key.
func (m *SymbolMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
