package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IngestService turns authenticated webhook payloads into pending
// signals: secret check, validation, account resolution, symbol
// mapping, risk resolution, idempotent enqueue.
type IngestService struct {
	users    *UserService
	mappings *MappingService
	risk     *RiskResolver
	queue    *QueueService
	notify   *NotifyService
	cfg      *config.Config
	log      *zap.SugaredLogger
}

// NewIngestService creates a new ingest service
func NewIngestService(users *UserService, mappings *MappingService, risk *RiskResolver, queue *QueueService, notify *NotifyService, cfg *config.Config, log *zap.SugaredLogger) *IngestService {
	return &IngestService{
		users:    users,
		mappings: mappings,
		risk:     risk,
		queue:    queue,
		notify:   notify,
		cfg:      cfg,
		log:      log,
	}
}

// IngestResult summarizes one webhook delivery.
type IngestResult struct {
	SignalIDs  []string
	Created    int
	Duplicates int
}

// ProcessWebhook runs the full ingestion pipeline. Validation and risk
// resolution complete for every target account before anything is
// persisted, so rejected payloads leave no partial state.
func (s *IngestService) ProcessWebhook(ctx context.Context, payload *models.WebhookPayload, raw []byte) (*IngestResult, error) {
	user, err := s.users.GetUserByWebhookSecret(ctx, payload.Secret)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	payload.Comment = sanitizeComment(payload.Comment)

	count, err := s.users.CountSignalsToday(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if count >= int64(user.MaxSignalsPerDay) {
		return nil, relay.TierLimit("daily signal limit reached for tier %s (%d)", user.Tier, user.MaxSignalsPerDay)
	}

	accounts, err := s.resolveAccounts(ctx, user, payload)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &IngestResult{}, nil
	}

	// Resolve every draft before the first write.
	drafts := make([]*SignalDraft, len(accounts))
	for i := range accounts {
		draft, err := s.buildDraft(ctx, &accounts[i], payload)
		if err != nil {
			return nil, err
		}
		drafts[i] = draft
	}

	now := time.Now().UTC()
	result := &IngestResult{}
	for i := range accounts {
		signal := draftToSignal(user.ID, &accounts[i], drafts[i], payload, raw, now, s.ttlFor(&accounts[i]))
		key := s.idempotencyKey(user.ID, accounts[i].ID, payload, now)
		signal.IdempotencyKey = &key

		stored, created, err := s.queue.Enqueue(ctx, signal)
		if err != nil {
			return nil, err
		}
		result.SignalIDs = append(result.SignalIDs, stored.ID)
		if created {
			result.Created++
			s.notify.SignalCreated(stored)
		} else {
			result.Duplicates++
		}
	}

	s.log.Infow("webhook ingested",
		"user_id", user.ID,
		"symbol", payload.Symbol,
		"action", payload.Action,
		"created", result.Created,
		"duplicates", result.Duplicates)
	return result, nil
}

// resolveAccounts picks the target accounts: the explicit account_id
// when given, otherwise every active account the user owns.
func (s *IngestService) resolveAccounts(ctx context.Context, user *models.User, payload *models.WebhookPayload) ([]models.Account, error) {
	if payload.AccountID != "" {
		account, err := s.users.GetUserAccount(ctx, user.ID, payload.AccountID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive {
			return nil, relay.Validation("account %s is not active", account.ID)
		}
		return []models.Account{*account}, nil
	}
	return s.users.ActiveAccounts(ctx, user.ID)
}

// buildDraft applies the symbol mapper and risk resolver for one account.
func (s *IngestService) buildDraft(ctx context.Context, account *models.Account, payload *models.WebhookPayload) (*SignalDraft, error) {
	mtSymbol, multiplier, err := s.mappings.Resolve(ctx, account.ID, payload.Symbol)
	if err != nil {
		return nil, err
	}

	draft := &SignalDraft{
		Symbol:        mtSymbol,
		Action:        payload.Action,
		OrderType:     effectiveOrderType(payload),
		Quantity:      decimalPtr(payload.Quantity),
		RiskPercent:   decimalPtr(payload.RiskPercent),
		Price:         decimalPtr(payload.Price),
		TakeProfit:    decimalPtr(payload.TakeProfit),
		StopLoss:      decimalPtr(payload.StopLoss),
		TrailingStop:  decimalPtr(payload.TrailingStop),
		Comment:       payload.Comment,
		LotMultiplier: multiplier,
	}

	if err := s.risk.Resolve(account, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// ttlFor returns the signal TTL, honoring a per-account override.
func (s *IngestService) ttlFor(account *models.Account) time.Duration {
	if account.SignalTTLSeconds > 0 {
		return time.Duration(account.SignalTTLSeconds) * time.Second
	}
	return time.Duration(s.cfg.Signals.TTLSeconds) * time.Second
}

// idempotencyKey buckets time into the configured window so a webhook
// retried by the alert source maps onto the signal it already created.
func (s *IngestService) idempotencyKey(userID, accountID string, payload *models.WebhookPayload, now time.Time) string {
	window := int64(s.cfg.Signals.IdempotencyWindowSeconds)
	bucket := now.Unix() / window

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%d",
		userID, accountID, payload.Symbol, payload.Action,
		decimalString(payload.Quantity), decimalString(payload.RiskPercent),
		payload.Comment, bucket)
	return hex.EncodeToString(h.Sum(nil))
}

func draftToSignal(userID string, account *models.Account, draft *SignalDraft, payload *models.WebhookPayload, raw []byte, now time.Time, ttl time.Duration) *models.Signal {
	return &models.Signal{
		UserID:       userID,
		AccountID:    account.ID,
		Symbol:       draft.Symbol,
		Action:       draft.Action,
		OrderType:    draft.OrderType,
		Quantity:     draft.Quantity,
		Price:        draft.Price,
		TakeProfit:   draft.TakeProfit,
		StopLoss:     draft.StopLoss,
		TrailingStop: draft.TrailingStop,
		Comment:      draft.Comment,
		Status:       models.StatusPending,
		Source:       "tradingview",
		RawPayload:   string(raw),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// validatePayload checks everything that does not need account state.
func validatePayload(p *models.WebhookPayload) error {
	if strings.TrimSpace(p.Symbol) == "" {
		return relay.Validation("symbol is required")
	}
	if len(p.Symbol) > 50 {
		return relay.Validation("symbol must be at most 50 characters")
	}
	if !models.ValidActions[p.Action] {
		return relay.Validation("unknown action %q", p.Action)
	}

	orderType := effectiveOrderType(p)
	switch orderType {
	case models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop:
	default:
		return relay.Validation("unknown order_type %q", p.OrderType)
	}

	if models.IsPendingOrderAction(p.Action) || orderType != models.OrderTypeMarket {
		if p.Price == nil || !p.Price.IsPositive() {
			return relay.Validation("price is required for %s orders", p.Action)
		}
	}

	if p.Quantity != nil && !p.Quantity.IsPositive() {
		return relay.Validation("quantity must be greater than 0")
	}
	if p.Quantity != nil && p.RiskPercent != nil {
		return relay.Validation("quantity and risk_percent are mutually exclusive")
	}
	if p.TakeProfit != nil && !p.TakeProfit.IsPositive() {
		return relay.Validation("take_profit must be greater than 0")
	}
	if p.StopLoss != nil && !p.StopLoss.IsPositive() {
		return relay.Validation("stop_loss must be greater than 0")
	}
	if p.TrailingStop != nil && p.TrailingStop.IsNegative() {
		return relay.Validation("trailing_stop must not be negative")
	}

	// TP must sit on the profitable side of SL for the direction.
	if p.TakeProfit != nil && p.StopLoss != nil && models.IsOpeningAction(p.Action) {
		if models.IsBuySide(p.Action) {
			if p.TakeProfit.LessThanOrEqual(p.StopLoss.Decimal) {
				return relay.Validation("take_profit must be greater than stop_loss for buy orders")
			}
		} else {
			if p.TakeProfit.GreaterThanOrEqual(p.StopLoss.Decimal) {
				return relay.Validation("take_profit must be less than stop_loss for sell orders")
			}
		}
	}

	if len(p.Comment) > 255 {
		return relay.Validation("comment must be at most 255 characters")
	}
	return nil
}

// effectiveOrderType derives the order type from the action when the
// payload leaves it blank.
func effectiveOrderType(p *models.WebhookPayload) string {
	if p.OrderType != "" {
		return p.OrderType
	}
	switch p.Action {
	case models.ActionBuyLimit, models.ActionSellLimit:
		return models.OrderTypeLimit
	case models.ActionBuyStop, models.ActionSellStop:
		return models.OrderTypeStop
	default:
		return models.OrderTypeMarket
	}
}

// sanitizeComment strips characters MT4/MT5 terminals reject and caps
// the length at the MT comment field limit.
func sanitizeComment(comment string) string {
	var b strings.Builder
	for _, c := range comment {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == ' ' || c == '_' || c == '-' || c == '.' {
			b.WriteRune(c)
		}
	}
	s := b.String()
	if len(s) > 31 {
		s = s[:31]
	}
	return s
}

func decimalPtr(d *models.StrictDecimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Decimal
	return &v
}

func decimalString(d *models.StrictDecimal) string {
	if d == nil {
		return ""
	}
	return d.Decimal.String()
}
