package services

import (
	"strings"
	"time"

	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
)

// SignalDraft is the working form of a signal between payload parsing
// and persistence. The symbol is post-mapping; exactly one sizing mode
// (Quantity or RiskPercent) survives resolution.
type SignalDraft struct {
	Symbol        string
	Action        string
	OrderType     string
	Quantity      *decimal.Decimal
	RiskPercent   *decimal.Decimal
	Price         *decimal.Decimal
	TakeProfit    *decimal.Decimal
	StopLoss      *decimal.Decimal
	TrailingStop  *decimal.Decimal
	Comment       string
	LotMultiplier decimal.Decimal
}

var (
	minLotSize = decimal.RequireFromString("0.01")
	lotStep    = decimal.RequireFromString("0.01")

	// Symbol-specific lot caps for metals and oil, tighter or looser
	// than the account default.
	symbolLotCaps = map[string]decimal.Decimal{
		"XAUUSD": decimal.NewFromInt(50),
		"GOLD":   decimal.NewFromInt(50),
		"USOIL":  decimal.NewFromInt(100),
		"XTIUSD": decimal.NewFromInt(100),
	}
)

// RiskResolver computes the effective lot size for a signal draft and
// enforces account guardrails. It never persists anything; rejected
// drafts produce no signal row.
type RiskResolver struct {
	cfg *config.Config
}

// NewRiskResolver creates a new risk resolver
func NewRiskResolver(cfg *config.Config) *RiskResolver {
	return &RiskResolver{cfg: cfg}
}

// Resolve finalizes draft.Quantity. Order of checks: whitelist, equity
// protection, then sizing.
func (r *RiskResolver) Resolve(account *models.Account, draft *SignalDraft) error {
	if !account.AllowsSymbol(draft.Symbol) {
		return relay.RiskLimit("symbol %s is not whitelisted for this account", draft.Symbol)
	}

	if err := r.checkDrawdown(account); err != nil {
		return err
	}

	if !models.IsOpeningAction(draft.Action) {
		// close/close_partial/modify carry no sizing requirement;
		// close_partial keeps an explicit quantity when given.
		if draft.Quantity != nil {
			scaled := draft.Quantity.Mul(draft.LotMultiplier)
			draft.Quantity = &scaled
		}
		draft.RiskPercent = nil
		return nil
	}

	switch {
	case draft.Quantity != nil:
		qty := draft.Quantity.Mul(draft.LotMultiplier)
		if err := r.checkLotBounds(account, draft.Symbol, qty); err != nil {
			return err
		}
		draft.Quantity = &qty
		draft.RiskPercent = nil

	case draft.RiskPercent != nil:
		qty, err := r.sizeByRisk(account, draft)
		if err != nil {
			return err
		}
		if err := r.checkLotBounds(account, draft.Symbol, qty); err != nil {
			return err
		}
		draft.Quantity = &qty
		draft.RiskPercent = nil

	default:
		return relay.Validation("either quantity or risk_percent is required for %s", draft.Action)
	}

	return nil
}

// sizeByRisk derives the lot size from the balance cache and the stop
// distance: balance * risk% / |entry - stop_loss|, rounded down to the
// lot step.
func (r *RiskResolver) sizeByRisk(account *models.Account, draft *SignalDraft) (decimal.Decimal, error) {
	if draft.RiskPercent.IsNegative() || draft.RiskPercent.IsZero() {
		return decimal.Decimal{}, relay.Validation("risk_percent must be greater than 0")
	}
	if draft.StopLoss == nil {
		return decimal.Decimal{}, relay.InsufficientData("risk_percent sizing requires stop_loss")
	}
	if draft.Price == nil {
		return decimal.Decimal{}, relay.InsufficientData("risk_percent sizing requires a reference price")
	}

	if account.LastBalance == nil || account.BalanceUpdatedAt == nil {
		return decimal.Decimal{}, relay.InsufficientData("no balance reported for this account yet")
	}
	maxAge := time.Duration(r.cfg.Signals.BalanceMaxAgeSeconds) * time.Second
	if time.Since(*account.BalanceUpdatedAt) > maxAge {
		return decimal.Decimal{}, relay.InsufficientData("last balance report is older than %s", maxAge)
	}

	distance := draft.Price.Sub(*draft.StopLoss).Abs()
	if distance.IsZero() {
		return decimal.Decimal{}, relay.Validation("stop_loss must differ from the entry price")
	}

	riskAmount := account.LastBalance.Mul(*draft.RiskPercent).Div(decimal.NewFromInt(100))
	qty := riskAmount.Div(distance).Mul(draft.LotMultiplier)

	// Round down to the lot step; rounding up would risk more than asked.
	qty = qty.Div(lotStep).Floor().Mul(lotStep)
	if qty.LessThan(minLotSize) {
		return decimal.Decimal{}, relay.RiskLimit("computed lot size %s is below the minimum %s", qty, minLotSize)
	}
	return qty, nil
}

// checkLotBounds rejects quantities outside the account and symbol caps.
// Reject rather than clamp so the audit trail shows the strategy's
// intent was refused, not silently altered.
func (r *RiskResolver) checkLotBounds(account *models.Account, symbol string, qty decimal.Decimal) error {
	if qty.LessThan(minLotSize) {
		return relay.RiskLimit("lot size %s is below the minimum %s", qty, minLotSize)
	}

	maxLot := account.MaxLotSize
	if symbolCap, ok := symbolLotCaps[strings.ToUpper(symbol)]; ok && symbolCap.LessThan(maxLot) {
		maxLot = symbolCap
	}
	if maxLot.IsPositive() && qty.GreaterThan(maxLot) {
		return relay.RiskLimit("lot size %s exceeds the maximum %s", qty, maxLot)
	}
	return nil
}

// checkDrawdown rejects new exposure once the daily drawdown threshold
// is breached. The guard is advisory when no equity has been reported.
func (r *RiskResolver) checkDrawdown(account *models.Account) error {
	if account.DrawdownLimitPercent.IsZero() || account.DayStartBalance == nil || account.LastEquity == nil {
		return nil
	}
	if !account.DayStartBalance.IsPositive() {
		return nil
	}
	drawdown := account.DayStartBalance.Sub(*account.LastEquity).
		Div(*account.DayStartBalance).
		Mul(decimal.NewFromInt(100))
	if drawdown.GreaterThanOrEqual(account.DrawdownLimitPercent) {
		return relay.RiskLimit("daily drawdown %s%% breached the %s%% limit", drawdown.Round(2), account.DrawdownLimitPercent)
	}
	return nil
}
